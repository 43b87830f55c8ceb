package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Resolver launch errors
	ErrFileNotFound = fmt.Errorf("resolver executable not found")
	ErrFailedToLoad = fmt.Errorf("resolver failed to load")

	// Resolver lifecycle errors
	ErrRestartExhausted = fmt.Errorf("resolver restart limit reached")
	ErrNotReady         = fmt.Errorf("resolver not ready")
	ErrStopped          = fmt.Errorf("resolver stopped")

	// Protocol errors
	ErrProtocol       = fmt.Errorf("protocol error")
	ErrUnknownMessage = fmt.Errorf("%w: unknown message type", ErrProtocol)
	ErrFrameTooLarge  = fmt.Errorf("%w: frame too large", ErrProtocol)

	// Pipeline errors
	ErrUnknownQuery = fmt.Errorf("unknown query id")
	ErrTimeout      = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")
	ErrEntityNotFound     = fmt.Errorf("entity not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
