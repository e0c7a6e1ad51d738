package intercept

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedeck/tapedeck/internal/tape"
)

// stubRecorder serves a fixed tape, or none.
type stubRecorder struct {
	tape tape.Tape
}

func (r *stubRecorder) ActiveTape() tape.Tape { return r.tape }

// stubTransport returns a canned response or error and captures the
// outbound request.
type stubTransport struct {
	status  int
	headers http.Header
	body    string
	err     error

	calls    int
	lastReq  *http.Request
	lastBody string
}

func (s *stubTransport) Execute(req *http.Request) (*http.Response, error) {
	s.calls++
	s.lastReq = req
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		s.lastBody = string(data)
	}
	if s.err != nil {
		return nil, s.err
	}

	headers := s.headers
	if headers == nil {
		headers = http.Header{}
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Header:     headers,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func newProxyRequest(method, url string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	return req
}

func TestDispatcherForwardsWithoutTape(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{
		status:  200,
		headers: http.Header{"Content-Type": {"application/json"}},
		body:    `{"id":1}`,
	}
	d := NewDispatcher(&stubRecorder{}, transport)

	req := newProxyRequest("GET", "http://origin.example/widgets", nil)
	req.Header.Set("Connection", "keep-alive")
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"id":1}`, rec.Body.String())
	assert.Equal(t, ViaValue, rec.Header().Get(ViaHeader))

	// No tape, no annotation.
	assert.Empty(t, rec.Header().Get(AnnotationHeader))

	// The inbound Connection header never reaches the origin.
	assert.Empty(t, transport.lastReq.Header.Get("Connection"))
}

func TestDispatcherOutboundRequestCarriesVia(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{body: "ok"}
	d := NewDispatcher(&stubRecorder{}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/", nil))

	require.Equal(t, 1, transport.calls)
	assert.Contains(t, transport.lastReq.Header.Values(ViaHeader), ViaValue)
}

func TestDispatcherPlaybackHit(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("catalog", []tape.Interaction{{
		Request: tape.Request{Method: "GET", URL: "http://origin.example/widgets"},
		Response: tape.Response{
			Status:  200,
			Headers: http.Header{"Content-Type": {"application/json"}},
			Body:    `[{"id":1}]`,
		},
	}}, false)

	transport := &stubTransport{}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	// Served from tape without touching the network.
	assert.Zero(t, transport.calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `[{"id":1}]`, rec.Body.String())
	assert.Equal(t, AnnotationPlay, rec.Header().Get(AnnotationHeader))
	assert.Equal(t, ViaValue, rec.Header().Get(ViaHeader))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDispatcherPlaybackFiltersHopByHopHeaders(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("catalog", []tape.Interaction{{
		Request: tape.Request{Method: "GET", URL: "http://origin.example/widgets"},
		Response: tape.Response{
			Status: 200,
			Headers: http.Header{
				"Connection":   {"close"},
				"Content-Type": {"text/plain"},
			},
			Body: "ok",
		},
	}}, false)

	d := NewDispatcher(&stubRecorder{tape: tp}, &stubTransport{})

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDispatcherMissForwardsAndRecords(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("session", nil, false)
	transport := &stubTransport{
		status:  201,
		headers: http.Header{"Content-Type": {"application/json"}},
		body:    `{"id":7}`,
	}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("POST", "http://origin.example/widgets", strings.NewReader(`{"name":"new"}`)))

	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, `{"id":7}`, rec.Body.String())
	assert.Equal(t, AnnotationRecord, rec.Header().Get(AnnotationHeader))
	assert.Equal(t, ViaValue, rec.Header().Get(ViaHeader))

	// Exactly one interaction was recorded, carrying both bodies.
	interactions := tp.Interactions()
	require.Len(t, interactions, 1)
	assert.Equal(t, "POST", interactions[0].Request.Method)
	assert.Equal(t, "http://origin.example/widgets", interactions[0].Request.URL)
	assert.Equal(t, `{"name":"new"}`, interactions[0].Request.Body)
	assert.Equal(t, 201, interactions[0].Response.Status)
	assert.Equal(t, `{"id":7}`, interactions[0].Response.Body)

	// The request body reached the origin too.
	assert.Equal(t, `{"name":"new"}`, transport.lastBody)

	// A replay of the same request now hits without the network.
	transport.calls = 0
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("POST", "http://origin.example/widgets", strings.NewReader(`{"name":"new"}`)))
	assert.Zero(t, transport.calls)
	assert.Equal(t, AnnotationPlay, rec.Header().Get(AnnotationHeader))
}

func TestDispatcherNoTapeDoesNotRecord(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{body: "ok"}
	d := NewDispatcher(&stubRecorder{}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(AnnotationHeader))
}

func TestDispatcherTransportFailure(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("session", nil, false)
	transport := &stubTransport{err: errors.New("dial tcp: connection refused")}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, ViaValue, rec.Header().Get(ViaHeader))
	assert.Contains(t, rec.Body.String(), "bad gateway")

	// Nothing is recorded on failure.
	assert.Empty(t, tp.Interactions())
	assert.Empty(t, rec.Header().Get(AnnotationHeader))
}

func TestDispatcherResponseBodyReadFailure(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("session", nil, false)
	transport := &brokenBodyTransport{}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, tp.Interactions())
}

// brokenBodyTransport responds successfully but with a body that fails
// mid-read.
type brokenBodyTransport struct{}

func (b *brokenBodyTransport) Execute(*http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(&brokenReader{}),
	}, nil
}

type brokenReader struct{}

func (r *brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("unexpected EOF")
}

func TestDispatcherUnsupportedMethod(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{}
	d := NewDispatcher(&stubRecorder{}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("PATCH", "http://origin.example/widgets", strings.NewReader("{}")))

	// No outbound call is attempted.
	assert.Zero(t, transport.calls)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, ViaValue, rec.Header().Get(ViaHeader))
	assert.Contains(t, rec.Body.String(), "PATCH")
}

func TestDispatcherStripsHopByHopFromOriginResponse(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{
		headers: http.Header{
			"Connection":   {"close"},
			"Keep-Alive":   {"timeout=5"},
			"Content-Type": {"text/html"},
		},
		body: "<p>hi</p>",
	}
	d := NewDispatcher(&stubRecorder{}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/", nil))

	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Empty(t, rec.Header().Get("Keep-Alive"))
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))
}

func TestDispatcherReverseProxyStyleTarget(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("catalog", []tape.Interaction{{
		Request:  tape.Request{Method: "GET", URL: "http://origin.example/widgets"},
		Response: tape.Response{Status: 200, Body: "ok"},
	}}, false)

	transport := &stubTransport{}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	// httptest.NewRequest with a path-only target sets Host separately.
	req := httptest.NewRequest("GET", "/widgets", nil)
	req.Host = "origin.example"
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	assert.Zero(t, transport.calls)
	assert.Equal(t, AnnotationPlay, rec.Header().Get(AnnotationHeader))
}

func TestDispatcherReadOnlyTapeForwardsWithoutRecording(t *testing.T) {
	t.Parallel()

	tp := tape.NewMemoryTape("frozen", nil, true)
	transport := &stubTransport{body: "ok"}
	d := NewDispatcher(&stubRecorder{tape: tp}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, tp.Interactions())
}

func TestDispatcherGetCarriesNoBody(t *testing.T) {
	t.Parallel()

	transport := &stubTransport{body: "ok"}
	d := NewDispatcher(&stubRecorder{}, transport)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, newProxyRequest("GET", "http://origin.example/widgets", nil))

	require.Equal(t, 1, transport.calls)
	assert.Nil(t, transport.lastReq.Body)
}
