package resolvers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/trackpipe/internal/models"
	"github.com/desertthunder/trackpipe/internal/protocol"
	"github.com/desertthunder/trackpipe/internal/shared"
)

// helperLauncher runs this test binary as a resolver process in the given mode.
type helperLauncher struct{ mode string }

func (l helperLauncher) Launch(_ context.Context, _ string) (Process, error) {
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("RESOLVER_HELPER_MODE=%s", l.mode))
	return StartCommand(cmd)
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	mode := os.Getenv("RESOLVER_HELPER_MODE")
	if mode == "crash" {
		fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	}

	w := protocol.NewWriter(os.Stdout)
	_ = protocol.ReadMessages(context.Background(), os.Stdin, func(raw json.RawMessage) {
		msg, err := protocol.Parse(raw)
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case protocol.Config:
			fmt.Fprintln(os.Stderr, "proxy", m.ProxyType)
			_ = w.WriteMessage(protocol.Settings{Name: "Helper", Weight: 75, Timeout: 3})
		case protocol.ResolveRequest:
			score := 1.0
			_ = w.WriteMessage(protocol.Results{QID: m.QID, Results: []protocol.ResultEntry{
				{URL: "file:///music/" + m.Track + ".mp3", Artist: m.Artist, Track: m.Track, Score: &score},
			}})
		}
	}, nil)

	if mode == "hang" {
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

func TestScriptResolverProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns processes")
	}

	t.Run("resolves through a real process", func(t *testing.T) {
		reg := newRecordingRegistrar()
		r := NewScriptResolver("helper", WithLauncher(helperLauncher{mode: "serve"}), WithRegistrar(reg))
		defer r.Close()
		events := r.Subscribe()

		r.Start()
		eventually(t, "ready", r.Ready)
		if r.Name() != "Helper" || r.Weight() != 75 || r.Timeout() != 3*time.Second {
			t.Errorf("unexpected settings name=%s weight=%d timeout=%s", r.Name(), r.Weight(), r.Timeout())
		}

		q := models.NewQuery("Air", "Talisman", "")
		r.Resolve(q)
		eventually(t, "results", func() bool { return len(reg.reported()) == 1 })
		rep := reg.reported()[0]
		if rep.qid != q.ID || len(rep.results) != 1 || rep.results[0].ArtistName() != "Air" {
			t.Errorf("unexpected report %+v", rep)
		}

		r.Stop()
		waitEvent(t, events, EventTerminated)
		if r.State() != StateStopped {
			t.Errorf("expected stopped, got %s", r.State())
		}
	})

	t.Run("kills a process that ignores stdin close", func(t *testing.T) {
		r := NewScriptResolver("helper", WithLauncher(helperLauncher{mode: "hang"}), WithKillGrace(50*time.Millisecond))
		defer r.Close()
		events := r.Subscribe()

		r.Start()
		eventually(t, "ready", r.Ready)
		r.Stop()
		waitEvent(t, events, EventTerminated)
	})

	t.Run("crashing process exhausts restarts", func(t *testing.T) {
		r := NewScriptResolver("helper", WithLauncher(helperLauncher{mode: "crash"}), WithMaxRestarts(2))
		defer r.Close()

		r.Start()
		eventually(t, "restart exhaustion", func() bool {
			return errors.Is(r.Error(), shared.ErrRestartExhausted)
		})
		if r.Restarts() != 2 {
			t.Errorf("expected 2 restarts, got %d", r.Restarts())
		}
	})
}

func TestExecLauncher(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "resolver.py")
	if err := os.WriteFile(script, []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	binary := filepath.Join(dir, "resolver")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	unknown := filepath.Join(dir, "resolver.xyz")
	if err := os.WriteFile(unknown, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := ExecLauncher{}.Launch(context.Background(), filepath.Join(dir, "nope.py"))
		if !errors.Is(err, shared.ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := ExecLauncher{}.Launch(context.Background(), dir)
		if !errors.Is(err, shared.ErrFailedToLoad) {
			t.Errorf("expected ErrFailedToLoad, got %v", err)
		}
	})

	tests := []struct {
		name     string
		launcher ExecLauncher
		path     string
		wantName string
		wantArgs []string
	}{
		{"interpreter by extension", ExecLauncher{}, script, "python3", []string{script}},
		{"executable runs directly", ExecLauncher{}, binary, binary, nil},
		{"unknown extension", ExecLauncher{}, unknown, unknown, nil},
		{
			"custom interpreter",
			ExecLauncher{Interpreters: map[string][]string{".py": {"uv", "run"}}},
			script, "uv", []string{"run", script},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := os.Stat(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			name, args := tt.launcher.command(tt.path, info.Mode())
			if name != tt.wantName {
				t.Errorf("expected command %s, got %s", tt.wantName, name)
			}
			if fmt.Sprint(args) != fmt.Sprint(tt.wantArgs) {
				t.Errorf("expected args %v, got %v", tt.wantArgs, args)
			}
		})
	}
}

func TestStartCommand(t *testing.T) {
	t.Run("missing binary", func(t *testing.T) {
		_, err := StartCommand(exec.Command(filepath.Join(t.TempDir(), "missing")))
		if !errors.Is(err, shared.ErrFileNotFound) {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("kill is idempotent", func(t *testing.T) {
		p, err := helperLauncher{mode: "hang"}.Launch(context.Background(), "")
		if err != nil {
			t.Fatalf("launch failed: %v", err)
		}
		if err := p.Kill(); err != nil {
			t.Errorf("first kill failed: %v", err)
		}
		if err := p.Kill(); err != nil {
			t.Errorf("second kill failed: %v", err)
		}
		_ = p.Wait()
	})
}
