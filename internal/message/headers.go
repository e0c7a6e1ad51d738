package message

import "net/http"

// hopByHopHeaders are headers meaningful only for a single transport
// connection. They are never relayed between the client-facing and
// origin-facing sides of the proxy, in either direction. Names are stored in
// Go canonical form; the set is fixed at startup and never mutated.
var hopByHopHeaders = map[string]struct{}{
	"Content-Length":      {},
	"Host":                {},
	"Proxy-Connection":    {},
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// IsHopByHop reports whether the canonical header name is in the hop-by-hop
// set. Membership is case-sensitive on the canonical name.
func IsHopByHop(name string) bool {
	_, ok := hopByHopHeaders[name]
	return ok
}

// CopyHeaders copies every header from src to dst whose name is not in the
// hop-by-hop set, preserving value order and multiplicity. It is applied
// identically for request and response directions.
func CopyHeaders(dst, src http.Header) {
	for name, values := range src {
		if IsHopByHop(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}
