// Package headerfilter strips sensitive headers from captures and
// derives the forward-header set sent to upstreams.
package headerfilter

import (
	"net/http"
	"strconv"
	"strings"
)

// blocklist is case-insensitive; these headers are credentials or
// routing controls and must never land in a capture file.
var blocklist = map[string]bool{
	"authorization":              true,
	"x-api-key":                  true,
	"cookie":                     true,
	"set-cookie":                 true,
	"x-target-url":               true,
	"proxy-authorization":       true,
	"x-auth-token":               true,
	"x-forwarded-authorization": true,
	"www-authenticate":          true,
	"proxy-authenticate":        true,
	"x-goog-api-key":            true,
}

// SelectHeaders returns a copy of h containing only entries whose
// lowercased key is not in the blocklist and whose value is a single
// scalar string (multi-valued headers are dropped).
func SelectHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		if blocklist[strings.ToLower(k)] {
			continue
		}
		if len(values) != 1 {
			continue
		}
		out[k] = values[0]
	}
	return out
}

// ForwardHeaders derives the header set sent to the upstream from the
// incoming request headers: host, x-target-url, accept-encoding, and
// transfer-encoding are removed (so upstreams return uncompressed
// bodies and the proxy controls Host/Content-Length/Transfer-Encoding
// itself); Host is set to targetHost and Content-Length to the
// forwarded body length. If bodyMutated is true, content-encoding is
// also removed, since the new body is plain re-serialized JSON.
func ForwardHeaders(incoming http.Header, targetHost string, bodyLen int, bodyMutated bool) http.Header {
	out := make(http.Header, len(incoming))
	for k, values := range incoming {
		lower := strings.ToLower(k)
		switch lower {
		case "host", "x-target-url", "accept-encoding", "transfer-encoding":
			continue
		case "content-encoding":
			if bodyMutated {
				continue
			}
		}
		out[k] = append([]string(nil), values...)
	}
	out.Set("Host", targetHost)
	out.Set("Content-Length", strconv.Itoa(bodyLen))
	return out
}
