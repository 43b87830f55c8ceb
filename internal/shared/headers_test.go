package shared

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCurlCommand(t *testing.T) {
	tests := []struct {
		name       string
		cmd        string
		wantValues map[string]string
		wantCookie string
		wantErr    bool
	}{
		{
			name:       "single quoted header",
			cmd:        `curl -H 'Authorization: Bearer token123' https://search.example`,
			wantValues: map[string]string{"Authorization": "Bearer token123"},
		},
		{
			name:       "double quoted long flag",
			cmd:        `curl --header "X-Api-Key: abc" https://search.example`,
			wantValues: map[string]string{"X-Api-Key": "abc"},
		},
		{
			name:       "spaces around the colon",
			cmd:        `curl -H 'Authorization : Bearer token' https://search.example`,
			wantValues: map[string]string{"Authorization": "Bearer token"},
		},
		{
			name:       "cookie header is split out",
			cmd:        `curl -H 'Cookie: session=abc' -H 'Accept: */*' https://search.example`,
			wantValues: map[string]string{"Accept": "*/*"},
			wantCookie: "session=abc",
		},
		{
			name:       "cookie flag wins",
			cmd:        `curl -H 'Cookie: old=1' -b 'new=2' https://search.example`,
			wantValues: map[string]string{},
			wantCookie: "new=2",
		},
		{
			name: "line continuations",
			cmd: `curl 'https://search.example/search' \
  -H 'accept: application/json' \
  -H 'x-client: trackpipe' \
  --cookie "id=xyz"`,
			wantValues: map[string]string{"accept": "application/json", "x-client": "trackpipe"},
			wantCookie: "id=xyz",
		},
		{name: "nothing to extract", cmd: `curl https://search.example`, wantErr: true},
		{name: "empty", cmd: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseCurlCommand(tt.cmd)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(h.Values) != len(tt.wantValues) {
				t.Errorf("got %d headers, want %d: %v", len(h.Values), len(tt.wantValues), h.Values)
			}
			for k, want := range tt.wantValues {
				if got := h.Values[k]; got != want {
					t.Errorf("header %s = %q, want %q", k, got, want)
				}
			}
			if h.Cookie != tt.wantCookie {
				t.Errorf("cookie = %q, want %q", h.Cookie, tt.wantCookie)
			}
		})
	}
}

func TestLoadRequestHeaders(t *testing.T) {
	t.Run("reads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "headers.sh")
		if err := os.WriteFile(path, []byte(`curl -H 'X-Api-Key: abc' https://search.example`), 0644); err != nil {
			t.Fatal(err)
		}
		h, err := LoadRequestHeaders(path)
		if err != nil {
			t.Fatal(err)
		}
		if h.Values["X-Api-Key"] != "abc" {
			t.Errorf("unexpected headers %v", h.Values)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadRequestHeaders("/nonexistent/headers.sh"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestRequestHeadersApply(t *testing.T) {
	h := &RequestHeaders{
		Values: map[string]string{"x-api-key": "abc", "Content-Length": "12", "accept-encoding": "br"},
		Cookie: "id=1",
	}
	dst := http.Header{}
	h.Apply(dst)

	if dst.Get("X-Api-Key") != "abc" || dst.Get("Cookie") != "id=1" {
		t.Errorf("unexpected headers %v", dst)
	}
	if dst.Get("Content-Length") != "" || dst.Get("Accept-Encoding") != "" {
		t.Errorf("transport headers should be skipped: %v", dst)
	}

	var none *RequestHeaders
	none.Apply(dst)
}
