package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackpipe/internal/shared"
	"github.com/desertthunder/trackpipe/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive resolution monitor.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	logPath := r.config.Log.File
	if logPath == "" {
		logPath = "./tmp/trackpipe-tui.log"
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	s, err := r.openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	model := ui.NewModel(ctx, s.pipeline, s.allResolvers())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
