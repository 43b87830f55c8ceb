package shared

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
)

var (
	headerFlag = regexp.MustCompile(`(?:-H|--header)\s+(?:'([^']+)'|"([^"]+)")`)
	cookieFlag = regexp.MustCompile(`(?:-b|--cookie)\s+(?:'([^']+)'|"([^"]+)")`)
)

// RequestHeaders are extra headers an HTTP resolver sends with every search, typically
// copied from a browser's "copy as cURL".
type RequestHeaders struct {
	Values map[string]string
	Cookie string
}

// LoadRequestHeaders reads a file holding a single cURL command.
func LoadRequestHeaders(path string) (*RequestHeaders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read headers file: %w", err)
	}
	h, err := ParseCurlCommand(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// ParseCurlCommand extracts -H/--header and -b/--cookie values from cmd. A -b cookie wins
// over a Cookie header.
func ParseCurlCommand(cmd string) (*RequestHeaders, error) {
	cmd = strings.ReplaceAll(cmd, "\\\n", " ")

	h := &RequestHeaders{Values: map[string]string{}}
	var headerCookie string
	for _, m := range headerFlag.FindAllStringSubmatch(cmd, -1) {
		k, v, ok := strings.Cut(firstGroup(m), ":")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if strings.EqualFold(k, "cookie") {
			if headerCookie == "" {
				headerCookie = v
			}
			continue
		}
		h.Values[k] = v
	}

	if m := cookieFlag.FindStringSubmatch(cmd); m != nil {
		h.Cookie = firstGroup(m)
	} else {
		h.Cookie = headerCookie
	}

	if len(h.Values) == 0 && h.Cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}
	return h, nil
}

func firstGroup(m []string) string {
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// Apply sets every header on dst. Hop-by-hop and length headers from the capture are
// skipped since the client computes its own.
func (h *RequestHeaders) Apply(dst http.Header) {
	if h == nil {
		return
	}
	for k, v := range h.Values {
		switch strings.ToLower(k) {
		case "content-length", "connection", "host", "accept-encoding":
			continue
		}
		dst.Set(k, v)
	}
	if h.Cookie != "" {
		dst.Set("Cookie", h.Cookie)
	}
}
