package shared

import (
	"fmt"
	"os/exec"
	"runtime"
)

var goos = func() string { return runtime.GOOS }

// openCommand returns the platform opener for target.
func openCommand(target string) (*exec.Cmd, error) {
	switch name := goos(); name {
	case "darwin":
		return exec.Command("open", target), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", target), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target), nil
	default:
		return nil, fmt.Errorf("%w: cannot open URLs on %s", ErrNotImplemented, name)
	}
}

// OpenURL hands target, a web or file URL, to the desktop's default handler so a resolved
// track can be played. It does not wait for the handler to exit.
func OpenURL(target string) error {
	if target == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidArgument)
	}
	cmd, err := openCommand(target)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	go cmd.Wait()
	return nil
}
