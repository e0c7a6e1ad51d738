package tape

import (
	"net/http"
	"time"
)

// Request is the wire-level view of a request presented to a tape. The body
// is always fully buffered before a tape sees it.
type Request struct {
	Method  string      `yaml:"method" json:"method"`
	URL     string      `yaml:"url" json:"url"`
	Headers http.Header `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string      `yaml:"body,omitempty" json:"body,omitempty"`
}

// Response is the wire-level view of a response held by a tape.
type Response struct {
	Status  int         `yaml:"status" json:"status"`
	Headers http.Header `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    string      `yaml:"body,omitempty" json:"body,omitempty"`
}

// Interaction is a single recorded request/response pair.
type Interaction struct {
	ID       string    `yaml:"id,omitempty" json:"id,omitempty"`
	Recorded time.Time `yaml:"recorded" json:"recorded"`
	Request  Request   `yaml:"request" json:"request"`
	Response Response  `yaml:"response" json:"response"`
}

// Tape is a named recording session. Play matches a request against stored
// interactions; Record appends a new one. A tape must tolerate concurrent
// Play and Record calls.
type Tape interface {
	// Name returns the tape name.
	Name() string

	// ReadOnly reports whether the tape rejects new recordings.
	ReadOnly() bool

	// Play matches the request against stored interactions. It returns the
	// matched response and true on a hit; a miss is not an error.
	Play(req *Request) (*Response, bool)

	// Record appends the exchanged request/response pair. Recording on a
	// read-only tape is a silent no-op.
	Record(req *Request, resp *Response)

	// Interactions returns a snapshot of the stored interactions.
	Interactions() []Interaction

	// Dirty reports whether the tape holds recordings not yet persisted.
	Dirty() bool
}
