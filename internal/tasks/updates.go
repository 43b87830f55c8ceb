package tasks

import (
	"fmt"

	"github.com/desertthunder/trackpipe/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SubmitQueries Phase = iota
	ResolveQueries
	Complete
)

func (p Phase) String() string {
	switch p {
	case SubmitQueries:
		return "submit_queries"
	case ResolveQueries:
		return "resolve_queries"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func submitQueryUpdate(step, total int, q *models.Query) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SubmitQueries,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving %s...", step, total, q),
	}
}

func resolvedQueryUpdate(step, total int, m QueryMatch) ProgressUpdate {
	if m.Err != nil {
		return ProgressUpdate{
			Phase:   ResolveQueries,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, m.Query, m.Err),
			Data:    m,
		}
	}
	return ProgressUpdate{
		Phase:   ResolveQueries,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s, %.2f)", step, total, m.Query, m.Best.Source, m.Best.Score),
		Data:    m,
	}
}

func batchCompleteUpdate(r *BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    r.Total,
		Total:   r.Total,
		Message: fmt.Sprintf("Resolved %d/%d queries (%.1f%%)", r.Matched, r.Total, r.MatchPercentage),
		Data:    r,
	}
}
