package httpclient

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrNoBody is returned by Decode when the response was streamed or
// written to disk.
var ErrNoBody = errors.New("response has no buffered body")

// Response is the outcome of a call. Its shape depends on how the call
// was delivered:
//
//   - buffered (default): Body holds the decoded payload, the raw text when
//     parsing is disabled, or nil when the payload was empty
//   - download (GET with Download): Body is nil and File names the written file
//   - stream (Stream(true)): Body is nil and Raw is the live response whose
//     body the caller must close
//
// A non-2xx status is a successful call; use IsSuccess or IsError to
// classify it. An unfollowed 3xx is returned as-is as well.
//
// Example:
//
//	resp, err := client.Request("GetUser").Get(ctx, "https://api.example.com/users/1")
//	if err != nil {
//	    return err // transport failure
//	}
//	if !resp.IsSuccess() {
//	    return fmt.Errorf("get user: HTTP %d: %s", resp.StatusCode, resp.String())
//	}
//	user := resp.Body.(map[string]any)
type Response struct {
	// StatusCode of the final hop.
	StatusCode int

	// Header of the final hop.
	Header http.Header

	// Body is the decoded payload of a buffered call.
	//
	// JSON payloads decode to map[string]any, []any, string, float64, bool
	// or nil. A payload declared as JSON that does not parse yields the
	// MalformedJSON string.
	Body any

	// File is the path written by a download.
	File string

	// Raw is the live response of a stream call.
	Raw *http.Response

	// Redirects is the number of redirects followed to reach this
	// response.
	Redirects int

	// URL is the address of the final hop.
	URL string

	raw         []byte
	curlCommand string
}

// shallowCopy returns a copy of r with its own Header. The decoded Body
// is shared.
func (r *Response) shallowCopy() *Response {
	cp := *r
	cp.Header = r.Header.Clone()
	return &cp
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsRedirect reports a 3xx status, which is only returned when the
// redirect was not followed.
func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// IsError reports a 4xx or 5xx status.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// IsMalformedJSON reports whether the payload claimed to be JSON but did
// not parse.
func (r *Response) IsMalformedJSON() bool {
	s, ok := r.Body.(string)
	return ok && s == MalformedJSON && mimeType(r.Header.Get("Content-Type")) == "application/json"
}

// Bytes returns the raw payload of a buffered call.
func (r *Response) Bytes() []byte {
	return r.raw
}

// String returns the raw payload of a buffered call as text.
func (r *Response) String() string {
	return string(r.raw)
}

// Stream returns the live body of a stream call, or nil.
func (r *Response) Stream() io.ReadCloser {
	if r.Raw == nil {
		return nil
	}
	return r.Raw.Body
}

// Decode unmarshals the raw payload of a buffered call into v. XML
// content types use encoding/xml, everything else is read as JSON.
//
// Example:
//
//	var user User
//	if err := resp.Decode(&user); err != nil {
//	    return err
//	}
func (r *Response) Decode(v any) error {
	if r.Raw != nil || r.File != "" {
		return ErrNoBody
	}
	if len(r.raw) == 0 {
		return nil
	}

	switch mt := mimeType(r.Header.Get("Content-Type")); {
	case mt == "application/xml", mt == "text/xml", strings.HasSuffix(mt, "+xml"):
		return xml.Unmarshal(r.raw, v)
	default:
		return json.Unmarshal(r.raw, v)
	}
}

// CurlCommand returns a cURL rendering of the final hop. It is empty
// unless the client was built WithGenerateCurl(true).
func (r *Response) CurlCommand() string {
	return r.curlCommand
}
