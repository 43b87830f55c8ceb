package resolvers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/desertthunder/trackpipe/internal/shared"
)

// Process is a running resolver program.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Kill terminates the process and anything it spawned. It is safe to call more than once.
	Kill() error
	// Wait blocks until the process exits. Callers must finish reading Stdout and Stderr first.
	Wait() error
	Pid() int
}

// Launcher starts resolver programs.
type Launcher interface {
	Launch(ctx context.Context, path string) (Process, error)
}

// DefaultInterpreters maps script extensions to the command used when the file is not executable.
var DefaultInterpreters = map[string][]string{
	".py":  {"python3"},
	".js":  {"node"},
	".sh":  {"sh"},
	".rb":  {"ruby"},
	".pl":  {"perl"},
	".php": {"php"},
}

// ExecLauncher starts resolvers with os/exec.
//
// Executable files run directly. Otherwise the interpreter is chosen by extension.
type ExecLauncher struct {
	Interpreters map[string][]string
	Env          []string
}

func (l ExecLauncher) Launch(ctx context.Context, path string) (Process, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", shared.ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrFailedToLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", shared.ErrFailedToLoad, path)
	}

	name, args := l.command(path, info.Mode())
	cmd := exec.Command(name, args...) //nolint:gosec
	cmd.Dir = filepath.Dir(path)
	cmd.Env = append(os.Environ(), l.Env...)
	return StartCommand(cmd)
}

func (l ExecLauncher) command(path string, mode fs.FileMode) (string, []string) {
	if mode&0o111 != 0 {
		return path, nil
	}
	table := l.Interpreters
	if table == nil {
		table = DefaultInterpreters
	}
	if interp, ok := table[strings.ToLower(filepath.Ext(path))]; ok && len(interp) > 0 {
		return interp[0], append(append([]string{}, interp[1:]...), path)
	}
	return path, nil
}

// StartCommand wires cmd's standard streams and starts it in its own process group.
func StartCommand(cmd *exec.Cmd) (Process, error) {
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", shared.ErrFailedToLoad, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", shared.ErrFailedToLoad, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", shared.ErrFailedToLoad, err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", shared.ErrFileNotFound, err)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrFailedToLoad, err)
	}

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	killOnce sync.Once
	killErr  error
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Pid() int              { return p.cmd.Process.Pid }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	p.killOnce.Do(func() {
		p.killErr = killProcessGroup(p.cmd)
		if errors.Is(p.killErr, os.ErrProcessDone) {
			p.killErr = nil
		}
	})
	return p.killErr
}
