package tape

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTape is an in-memory tape. Interactions are matched on request
// method and target URL; the first match wins and may be played any number
// of times. It is safe for concurrent use.
type MemoryTape struct {
	name     string
	readOnly bool

	mu           sync.RWMutex
	interactions []Interaction
	dirty        bool
}

// NewMemoryTape creates a tape with the given name and initial interactions.
func NewMemoryTape(name string, interactions []Interaction, readOnly bool) *MemoryTape {
	return &MemoryTape{
		name:         name,
		readOnly:     readOnly,
		interactions: append([]Interaction(nil), interactions...),
	}
}

// Name returns the tape name.
func (t *MemoryTape) Name() string { return t.name }

// ReadOnly reports whether the tape rejects new recordings.
func (t *MemoryTape) ReadOnly() bool { return t.readOnly }

// Play matches the request against stored interactions on method and URL.
func (t *MemoryTape) Play(req *Request) (*Response, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.interactions {
		if matches(&t.interactions[i].Request, req) {
			resp := cloneResponse(&t.interactions[i].Response)
			return resp, true
		}
	}
	return nil, false
}

// Record appends the exchanged pair. On a read-only tape it is a no-op.
func (t *MemoryTape) Record(req *Request, resp *Response) {
	if t.readOnly {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.interactions = append(t.interactions, Interaction{
		ID:       uuid.New().String(),
		Recorded: time.Now().UTC(),
		Request:  *req,
		Response: *resp,
	})
	t.dirty = true
}

// Interactions returns a snapshot of the stored interactions.
func (t *MemoryTape) Interactions() []Interaction {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Interaction(nil), t.interactions...)
}

// Dirty reports whether the tape holds recordings not yet persisted.
func (t *MemoryTape) Dirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dirty
}

// markClean clears the dirty flag after a successful save.
func (t *MemoryTape) markClean() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = false
}

// matches implements the default match rule: method (case-insensitive) and
// exact target URL.
func matches(stored, probe *Request) bool {
	return strings.EqualFold(stored.Method, probe.Method) && stored.URL == probe.URL
}

// cloneResponse copies a stored response so callers cannot mutate tape state.
func cloneResponse(r *Response) *Response {
	resp := &Response{
		Status: r.Status,
		Body:   r.Body,
	}
	if r.Headers != nil {
		resp.Headers = make(map[string][]string, len(r.Headers))
		for k, v := range r.Headers {
			resp.Headers[k] = append([]string(nil), v...)
		}
	}
	return resp
}
