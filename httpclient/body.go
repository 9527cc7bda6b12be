package httpclient

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BodyKind identifies the variant held by a Body.
type BodyKind int

const (
	// BodyEmpty means no payload is sent.
	BodyEmpty BodyKind = iota
	// BodyText is a string payload, sent in a single write.
	BodyText
	// BodyBinary is a byte payload, sent in a single write.
	BodyBinary
	// BodyStream is piped from a reader until EOF.
	BodyStream
)

// String returns the variant name.
func (k BodyKind) String() string {
	switch k {
	case BodyText:
		return "text"
	case BodyBinary:
		return "binary"
	case BodyStream:
		return "stream"
	default:
		return "empty"
	}
}

// Body is the request payload. The variant is fixed when the Body is
// built, so the dispatcher never inspects payload types again.
//
// Use NewBody for automatic selection:
//
//	NewBody("raw text")            // BodyText
//	NewBody([]byte{0x1f, 0x8b})    // BodyBinary
//	NewBody(file)                  // BodyStream (any io.Reader)
//	NewBody(map[string]any{"a": 1}) // BodyText holding {"a":1}
type Body struct {
	kind   BodyKind
	text   string
	data   []byte
	stream io.Reader
	file   string
}

// NewBody selects the Body variant for v.
//
// Encoding rules:
//   - nil: BodyEmpty
//   - string: BodyText
//   - []byte: BodyBinary
//   - io.Reader: BodyStream
//   - Body: returned as-is
//   - anything else: JSON-encoded into BodyText
func NewBody(v any) (Body, error) {
	switch b := v.(type) {
	case nil:
		return Body{}, nil
	case Body:
		return b, nil
	case string:
		return TextBody(b), nil
	case []byte:
		return BinaryBody(b), nil
	case io.Reader:
		return StreamBody(b), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return Body{}, err
		}
		return TextBody(string(data)), nil
	}
}

// TextBody returns a BodyText payload.
func TextBody(s string) Body {
	return Body{kind: BodyText, text: s}
}

// BinaryBody returns a BodyBinary payload.
func BinaryBody(b []byte) Body {
	return Body{kind: BodyBinary, data: b}
}

// StreamBody returns a BodyStream payload. A nil reader yields BodyEmpty.
func StreamBody(r io.Reader) Body {
	if r == nil {
		return Body{}
	}
	return Body{kind: BodyStream, stream: r}
}

// fileBody streams the file at path, reopening it for every attempt.
func fileBody(path string) Body {
	return Body{kind: BodyStream, file: path}
}

// Kind returns the variant.
func (b Body) Kind() BodyKind {
	return b.kind
}

// IsEmpty reports whether no payload is set.
func (b Body) IsEmpty() bool {
	return b.kind == BodyEmpty
}

// Text returns the payload of a BodyText.
func (b Body) Text() string {
	return b.text
}

// replayable reports whether the payload can be sent again on redirect.
func (b Body) replayable() bool {
	return b.kind != BodyStream || b.file != ""
}

// open returns a reader for one transmission of the payload and its
// length, or -1 when the length is unknown.
func (b Body) open() (io.Reader, int64, error) {
	switch b.kind {
	case BodyText:
		return strings.NewReader(b.text), int64(len(b.text)), nil
	case BodyBinary:
		return bytes.NewReader(b.data), int64(len(b.data)), nil
	case BodyStream:
		if b.file == "" {
			return b.stream, -1, nil
		}
		f, err := os.Open(b.file)
		if err != nil {
			return nil, 0, err
		}
		size := int64(-1)
		if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
			size = info.Size()
		}
		return f, size, nil
	default:
		return nil, 0, nil
	}
}

// spanBody wraps a streamed response body so the call span stays open
// until the caller finishes with the stream.
type spanBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	// onClose receives the total bytes read.
	onClose func(bytesRead int64)
}

func newSpanBody(span trace.Span, body io.ReadCloser, onClose func(bytesRead int64)) io.ReadCloser {
	if body == nil {
		return nil
	}
	return &spanBody{span: span, body: body, onClose: onClose}
}

// Read reads from the underlying body and ends the span at EOF.
func (w *spanBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	w.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		w.endSpan()
	default:
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}

	return n, err
}

// Close closes the underlying body and ends the span.
func (w *spanBody) Close() error {
	w.endSpan()
	return w.body.Close()
}

func (w *spanBody) endSpan() {
	if w.closed.CompareAndSwap(false, true) {
		if w.onClose != nil {
			w.onClose(w.read.Load())
		}
		w.span.End()
	}
}
