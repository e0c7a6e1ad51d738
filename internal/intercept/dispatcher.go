package intercept

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tapedeck/tapedeck/internal/message"
	"github.com/tapedeck/tapedeck/internal/observability"
	"github.com/tapedeck/tapedeck/internal/tape"
	"github.com/tapedeck/tapedeck/internal/upstream"
)

// Proxy marker headers.
const (
	// ViaHeader marks a message as proxy-traversed; appended to both the
	// inbound request and the outgoing response.
	ViaHeader = "Via"

	// ViaValue is the proxy identifier carried in the Via header.
	ViaValue = "Betamax"

	// AnnotationHeader reports the tape decision to the caller.
	AnnotationHeader = "X-Betamax"

	// AnnotationPlay marks a response served from tape.
	AnnotationPlay = "PLAY"

	// AnnotationRecord marks a response forwarded and recorded.
	AnnotationRecord = "REC"
)

// Exchange outcomes for metrics.
const (
	outcomePlayback = "playback"
	outcomeForward  = "forward"
	outcomeError    = "error"
)

// Recorder supplies the currently active tape, if any. It is queried once
// per exchange.
type Recorder interface {
	ActiveTape() tape.Tape
}

// Transport executes an outbound request. It blocks the calling goroutine
// for the duration of the network round trip.
type Transport interface {
	Execute(req *http.Request) (*http.Response, error)
}

// Dispatcher orchestrates each exchange: consult the active tape for
// playback, otherwise forward through the transport, record as needed,
// annotate the response, and map transport failures to a gateway error. It
// holds no exchange-scoped state and is safe for concurrent use.
type Dispatcher struct {
	recorder  Recorder
	transport Transport
	logger    observability.Logger
}

// DispatcherOption is a functional option for configuring the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetricsRegistry registers dispatch metrics with the given registry
// instead of the default registerer. Effective only on first use.
func WithMetricsRegistry(registry *prometheus.Registry) DispatcherOption {
	return func(d *Dispatcher) {
		initInterceptMetrics(registry)
	}
}

// NewDispatcher creates a dispatcher over the given recorder and transport.
func NewDispatcher(recorder Recorder, transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		recorder:  recorder,
		transport: transport,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServeHTTP implements http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Mark the inbound request as proxy-traversed. Via is not hop-by-hop,
	// so the header filter relays it to the origin.
	r.Header.Add(ViaHeader, ViaValue)

	target := targetURL(r)
	log := d.logger.WithContext(r.Context())

	t := d.recorder.ActiveTape()
	if t != nil {
		probe := &tape.Request{Method: r.Method, URL: target}
		if resp, ok := t.Play(probe); ok {
			log.Debug("tape hit",
				observability.String("tape", t.Name()),
				observability.String("method", r.Method),
				observability.String("url", target),
			)
			getInterceptMetrics().exchangesTotal.WithLabelValues(outcomePlayback).Inc()
			d.writePlayback(w, resp)
			return
		}
		log.Debug("tape miss, forwarding",
			observability.String("tape", t.Name()),
			observability.String("method", r.Method),
			observability.String("url", target),
		)
	}

	d.forward(w, r, t, target, log)
}

// forward drives the exchange against the real origin and relays the result.
func (d *Dispatcher) forward(
	w http.ResponseWriter,
	r *http.Request,
	t tape.Tape,
	target string,
	log observability.Logger,
) {
	out, err := message.BuildRequest(r.Context(), r.Method, target)
	if err != nil {
		log.Warn("unsupported method",
			observability.String("method", r.Method),
			observability.String("url", target),
		)
		getInterceptMetrics().errorsTotal.WithLabelValues("unsupported_method").Inc()
		getInterceptMetrics().exchangesTotal.WithLabelValues(outcomeError).Inc()
		d.writeUnsupportedMethod(w, r.Method)
		return
	}

	message.CopyHeaders(out.Header, r.Header)

	reqBody, err := bufferRequestBody(r)
	if err != nil {
		// A request body that cannot be drained is indistinguishable from
		// an upstream failure from the caller's point of view.
		log.Warn("failed to read request body", observability.Error(err))
		getInterceptMetrics().errorsTotal.WithLabelValues("body_read").Inc()
		getInterceptMetrics().exchangesTotal.WithLabelValues(outcomeError).Inc()
		d.writeBadGateway(w)
		return
	}
	message.AttachBody(out, reqBody)

	observability.InjectTraceContext(r.Context(), out)

	start := time.Now()
	resp, err := d.transport.Execute(out)
	if err != nil {
		log.Warn("upstream request failed",
			observability.String("method", out.Method),
			observability.String("url", target),
			observability.Error(err),
		)
		getInterceptMetrics().errorsTotal.WithLabelValues(errorType(err)).Inc()
		getInterceptMetrics().exchangesTotal.WithLabelValues(outcomeError).Inc()
		d.writeBadGateway(w)
		return
	}
	getInterceptMetrics().upstreamDuration.Observe(time.Since(start).Seconds())

	respBody, err := message.Copy(message.NewStreamBody(
		resp.Body,
		resp.Header.Get("Content-Type"),
		resp.Header.Get("Content-Encoding"),
		chunked(resp.TransferEncoding),
	))
	if err != nil {
		// A partially-copied response cannot be safely delivered.
		log.Error("failed to read origin response body", observability.Error(err))
		getInterceptMetrics().errorsTotal.WithLabelValues("body_read").Inc()
		getInterceptMetrics().exchangesTotal.WithLabelValues(outcomeError).Inc()
		d.writeBadGateway(w)
		return
	}

	annotation := ""
	if t != nil {
		t.Record(
			recordedRequest(out, target, reqBody),
			recordedResponse(resp, respBody),
		)
		annotation = AnnotationRecord
		getInterceptMetrics().recordsTotal.Inc()
		log.Debug("interaction recorded",
			observability.String("tape", t.Name()),
			observability.String("method", out.Method),
			observability.String("url", target),
			observability.Int("status", resp.StatusCode),
		)
	}

	getInterceptMetrics().exchangesTotal.WithLabelValues(outcomeForward).Inc()

	header := w.Header()
	message.CopyHeaders(header, resp.Header)
	if annotation != "" {
		header.Set(AnnotationHeader, annotation)
	}
	header.Add(ViaHeader, ViaValue)
	w.WriteHeader(resp.StatusCode)
	if respBody != nil {
		_, _ = w.Write(respBody.Bytes())
	}
}

// writePlayback synthesizes the response from a tape hit.
func (d *Dispatcher) writePlayback(w http.ResponseWriter, resp *tape.Response) {
	header := w.Header()
	message.CopyHeaders(header, resp.Headers)
	header.Set(AnnotationHeader, AnnotationPlay)
	header.Add(ViaHeader, ViaValue)

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
}

// writeBadGateway maps an upstream failure to a gateway error. Partial
// origin data is discarded and nothing is recorded.
func (d *Dispatcher) writeBadGateway(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Add(ViaHeader, ViaValue)
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"bad gateway","message":"failed to reach origin server"}`)
}

// writeUnsupportedMethod reports a method outside the supported set. The
// exchange is terminal; no outbound call was attempted.
func (d *Dispatcher) writeUnsupportedMethod(w http.ResponseWriter, method string) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Add(ViaHeader, ViaValue)
	w.WriteHeader(http.StatusNotImplemented)
	_, _ = fmt.Fprintf(w, `{"error":"unsupported method","method":%q}`, method)
}

// bufferRequestBody captures the single-use inbound body so the transport
// and the recorder can each consume it independently. Returns nil when the
// request carries no body.
func bufferRequestBody(r *http.Request) (*message.Body, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if r.ContentLength == 0 && len(r.TransferEncoding) == 0 {
		return nil, nil
	}
	return message.Copy(message.NewStreamBody(
		r.Body,
		r.Header.Get("Content-Type"),
		r.Header.Get("Content-Encoding"),
		chunked(r.TransferEncoding),
	))
}

// recordedRequest builds the wire-level request view handed to the tape.
func recordedRequest(out *http.Request, target string, body *message.Body) *tape.Request {
	req := &tape.Request{
		Method:  out.Method,
		URL:     target,
		Headers: cloneHeader(out.Header),
	}
	if body != nil {
		req.Body = string(body.Bytes())
	}
	return req
}

// recordedResponse builds the wire-level response view handed to the tape.
func recordedResponse(resp *http.Response, body *message.Body) *tape.Response {
	rec := &tape.Response{
		Status:  resp.StatusCode,
		Headers: make(http.Header),
	}
	message.CopyHeaders(rec.Headers, resp.Header)
	if body != nil {
		rec.Body = string(body.Bytes())
	}
	return rec
}

// cloneHeader copies a header map so tape contents stay independent of the
// live exchange.
func cloneHeader(h http.Header) http.Header {
	clone := make(http.Header, len(h))
	for k, v := range h {
		clone[k] = append([]string(nil), v...)
	}
	return clone
}

// targetURL reconstructs the origin URL for the inbound request. Proxy-style
// requests carry an absolute URI; reverse-proxy style requests are rebuilt
// from the Host header.
func targetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// chunked reports whether the transfer encoding list includes chunked.
func chunked(transferEncoding []string) bool {
	for _, te := range transferEncoding {
		if te == "chunked" {
			return true
		}
	}
	return false
}

// errorType classifies a transport error for metrics.
func errorType(err error) string {
	if errors.Is(err, upstream.ErrUpstreamUnavailable) {
		return "upstream_unavailable"
	}
	return "connection_failure"
}
