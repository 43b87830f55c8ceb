package resolvers

import "strings"

// DefaultMimetype is used when neither a mimetype nor a known extension is reported.
const DefaultMimetype = "application/octet-stream"

var extensionMimetypes = map[string]string{
	"mp3":  "audio/mpeg",
	"ogg":  "application/ogg",
	"oga":  "application/ogg",
	"opus": "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
	"mp4":  "audio/mp4",
	"aac":  "audio/aac",
	"wma":  "audio/x-ms-wma",
	"wav":  "audio/wav",
	"aif":  "audio/aiff",
	"aiff": "audio/aiff",
	"mpc":  "audio/x-musepack",
	"wv":   "audio/x-wavpack",
}

// MimetypeForExtension maps a file extension, with or without its dot, to a mimetype.
// It never returns "".
func MimetypeForExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if m, ok := extensionMimetypes[ext]; ok {
		return m
	}
	return DefaultMimetype
}

// MimetypeForURL guesses from the extension of the last path segment of u.
func MimetypeForURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	seg := u[strings.LastIndex(u, "/")+1:]
	if i := strings.LastIndex(seg, "."); i >= 0 {
		return MimetypeForExtension(seg[i+1:])
	}
	return DefaultMimetype
}
