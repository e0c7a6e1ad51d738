package message

import (
	"context"
	"net/http"
	"strings"
)

// supportedMethods is the closed set of methods the proxy forwards.
var supportedMethods = map[string]struct{}{
	http.MethodDelete:  {},
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodPost:    {},
	http.MethodPut:     {},
}

// BuildRequest maps an inbound method and target URI into an outbound
// request. The method is uppercased before matching; a method outside the
// supported set fails with *UnsupportedMethodError naming the offending
// method, and no outbound call is attempted. No body is pre-attached; entity
// propagation happens separately for methods that carry one.
func BuildRequest(ctx context.Context, method, target string) (*http.Request, error) {
	normalized := strings.ToUpper(method)
	if _, ok := supportedMethods[normalized]; !ok {
		return nil, &UnsupportedMethodError{Method: method}
	}
	return http.NewRequestWithContext(ctx, normalized, target, nil)
}

// EntityEnclosing reports whether the method semantically carries a request
// body. The normalized method name is expected.
func EntityEnclosing(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut:
		return true
	default:
		return false
	}
}

// AttachBody attaches a buffered body to an outbound request. Stream bodies
// must be buffered through Copy first so both the transport and the recorder
// can consume the content independently.
func AttachBody(req *http.Request, body *Body) {
	if body == nil || !EntityEnclosing(req.Method) {
		return
	}
	req.Body = body.Reader()
	req.ContentLength = body.Len()
	if ct := body.ContentType(); ct != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", ct)
	}
}
