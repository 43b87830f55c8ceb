package resolvers

import "testing"

func TestMimetypes(t *testing.T) {
	t.Run("by extension", func(t *testing.T) {
		tests := map[string]string{
			"mp3":   "audio/mpeg",
			".FLAC": "audio/flac",
			" ogg ": "application/ogg",
			"m4a":   "audio/mp4",
			"doc":   DefaultMimetype,
			"":      DefaultMimetype,
		}
		for ext, want := range tests {
			if got := MimetypeForExtension(ext); got != want {
				t.Errorf("MimetypeForExtension(%q) = %s, want %s", ext, got, want)
			}
		}
	})

	t.Run("by url", func(t *testing.T) {
		tests := []struct {
			url  string
			want string
		}{
			{"http://host/music/track.mp3", "audio/mpeg"},
			{"http://host/stream.opus?token=a.b", "audio/ogg"},
			{"file:///music/air/01.wav#t=10", "audio/wav"},
			{"http://host.example/stream", DefaultMimetype},
			{"", DefaultMimetype},
		}
		for _, tt := range tests {
			if got := MimetypeForURL(tt.url); got != tt.want {
				t.Errorf("MimetypeForURL(%q) = %s, want %s", tt.url, got, tt.want)
			}
		}
	})
}
