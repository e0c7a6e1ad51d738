package message

import (
	"bytes"
	"io"
)

// Body carries the entity of an HTTP message together with its transfer
// metadata. A body is either buffered (repeatable, readable any number of
// times) or backed by a single-use stream that is consumed by reading.
type Body struct {
	contentType     string
	contentEncoding string
	chunked         bool

	data   []byte
	stream io.ReadCloser
}

// NewBufferedBody creates a repeatable body from in-memory bytes.
func NewBufferedBody(data []byte, contentType, contentEncoding string, chunked bool) *Body {
	return &Body{
		contentType:     contentType,
		contentEncoding: contentEncoding,
		chunked:         chunked,
		data:            data,
	}
}

// NewStreamBody creates a single-use body backed by rc. Reading consumes it.
func NewStreamBody(rc io.ReadCloser, contentType, contentEncoding string, chunked bool) *Body {
	return &Body{
		contentType:     contentType,
		contentEncoding: contentEncoding,
		chunked:         chunked,
		stream:          rc,
	}
}

// Repeatable reports whether the body may be read more than once without
// side effects.
func (b *Body) Repeatable() bool {
	return b.stream == nil
}

// ContentType returns the content type carried with the body.
func (b *Body) ContentType() string { return b.contentType }

// ContentEncoding returns the content encoding carried with the body.
func (b *Body) ContentEncoding() string { return b.contentEncoding }

// Chunked reports whether the body was chunked-transfer encoded.
func (b *Body) Chunked() bool { return b.chunked }

// Bytes returns the buffered content. It returns nil for single-use bodies
// that have not been buffered through Copy.
func (b *Body) Bytes() []byte {
	return b.data
}

// Len returns the buffered length, or -1 for an unbuffered stream body.
func (b *Body) Len() int64 {
	if b.stream != nil {
		return -1
	}
	return int64(len(b.data))
}

// Reader returns a reader over the body content. For a buffered body each
// call returns a fresh reader; for a stream body the underlying single-use
// stream is returned.
func (b *Body) Reader() io.ReadCloser {
	if b.stream != nil {
		return b.stream
	}
	return io.NopCloser(bytes.NewReader(b.data))
}

// Copy propagates a body from one message to another. A repeatable body is
// reused by reference with its metadata untouched. A single-use body is
// drained fully into a new buffered body carrying the same content type,
// content encoding, and chunked flag. A read failure while draining
// propagates as *BodyReadError and no body is produced.
func Copy(src *Body) (*Body, error) {
	if src == nil {
		return nil, nil
	}
	if src.Repeatable() {
		return src, nil
	}

	data, err := io.ReadAll(src.stream)
	closeErr := src.stream.Close()
	if err != nil {
		return nil, &BodyReadError{Cause: err}
	}
	if closeErr != nil {
		return nil, &BodyReadError{Cause: closeErr}
	}

	return &Body{
		contentType:     src.contentType,
		contentEncoding: src.contentEncoding,
		chunked:         src.chunked,
		data:            data,
	}, nil
}
