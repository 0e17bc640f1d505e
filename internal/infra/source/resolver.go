// Package source abstracts byte-oriented record origins: local files and
// remote URLs. Resolution of a descriptor is a pure function; opening and
// probing are the only operations with side effects.
package source

import (
	"net/url"
	"regexp"
	"strings"
)

// Descriptor identifies a record origin after resolution. It is a value
// object produced by Resolve and carries no open handles.
type Descriptor struct {
	raw      string
	resolved string
	remote   bool
}

// Raw returns the descriptor as supplied by the caller.
func (d Descriptor) Raw() string { return d.raw }

// Resolved returns the location to actually open: the cleaned path for local
// sources, the direct-download URL for remote ones.
func (d Descriptor) Resolved() string { return d.resolved }

// IsRemote reports whether the descriptor points at an HTTP(S) origin.
func (d Descriptor) IsRemote() bool { return d.remote }

var driveFileRe = regexp.MustCompile(`drive\.google\.com/file/d/([^/]+)`)

// Resolve classifies a descriptor as local path or URL and rewrites known
// share links to their direct-download form. It is pure: no I/O, no side
// effects, and safe to call repeatedly.
func Resolve(raw string) Descriptor {
	trimmed := strings.TrimSpace(raw)

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return Descriptor{raw: raw, resolved: trimmed, remote: false}
	}

	return Descriptor{raw: raw, resolved: rewriteShareLink(trimmed), remote: true}
}

// rewriteShareLink converts browser share links from common hosts into URLs
// that serve the file bytes directly.
func rewriteShareLink(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}

	host := strings.ToLower(parsed.Host)

	switch {
	case strings.HasSuffix(host, "dropbox.com"):
		q := parsed.Query()
		if q.Get("dl") == "0" {
			q.Set("dl", "1")
			parsed.RawQuery = q.Encode()
		}
		return parsed.String()

	case strings.HasSuffix(host, "drive.google.com"):
		if m := driveFileRe.FindStringSubmatch(u); m != nil {
			return "https://drive.google.com/uc?export=download&id=" + m[1]
		}
		if id := parsed.Query().Get("id"); id != "" && strings.HasPrefix(parsed.Path, "/open") {
			return "https://drive.google.com/uc?export=download&id=" + id
		}
		return u

	default:
		return u
	}
}
