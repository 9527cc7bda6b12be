package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Errors returned before any network I/O takes place.
var (
	// ErrUnsupportedMethod is returned when a call uses a method other than
	// GET, POST, PUT, PATCH or DELETE.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")

	// ErrInvalidURL is returned when the target or proxy URI cannot be used.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrCertificateProxy is returned when a client certificate is set on
	// an https call routed through a plain http proxy, which has no TLS
	// connection to present it on.
	ErrCertificateProxy = errors.New("client certificate requires an https proxy")
)

// DefaultMaxRedirects is the redirect ceiling applied when none is configured.
const DefaultMaxRedirects = 3

// RequestConfig is the per-call configuration consumed by the dispatcher.
//
// A RequestConfig is derived for every call by copying the client-level
// defaults and then applying the RequestBuilder setters the caller used.
// Each field is overridden independently, so a call that only sets
// FollowRedirects keeps the client's Parse, Stream and MaxRedirects.
//
// A RequestConfig belongs to exactly one call and is never shared.
type RequestConfig struct {
	// OperationName labels spans and debug logs.
	OperationName string

	// Method is one of GET, POST, PUT, PATCH, DELETE.
	//
	// Default: GET
	Method string

	// Header holds request headers. Lookups are case-insensitive.
	Header http.Header

	// Body is the request payload.
	Body Body

	// Parse decodes the response body by content type when true and
	// returns the raw text when false.
	//
	// Default: true
	Parse bool

	// Stream hands the live response to the caller without buffering.
	//
	// Default: false
	Stream bool

	// FollowRedirects re-issues the call against the Location of a 3xx.
	//
	// Default: false
	FollowRedirects bool

	// MaxRedirects bounds the redirect chain of one call.
	//
	// Default: 3
	MaxRedirects int

	// Path is the download directory for GET calls and the upload source
	// for POST/PUT calls that carry no explicit Body.
	Path string

	// Filename overrides the name of the downloaded file.
	Filename string

	// Agent selects the connection pool used for the call.
	Agent Agent

	// Certificate is client TLS material for https targets.
	Certificate *Certificate

	// Proxy is an optional proxy URI. The request is sent to the proxy
	// with the full target URI as its request target.
	Proxy string

	// bodyErr holds a deferred body encoding error, returned at dispatch.
	bodyErr error
}

func defaultRequestConfig() RequestConfig {
	return RequestConfig{
		Method:       http.MethodGet,
		Header:       make(http.Header),
		Parse:        true,
		MaxRedirects: DefaultMaxRedirects,
	}
}

// clone returns a copy that shares nothing mutable with rc.
func (rc RequestConfig) clone() *RequestConfig {
	c := rc
	c.Header = rc.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// validate reports configuration errors that must fail the call up front.
func (rc *RequestConfig) validate() error {
	if rc.bodyErr != nil {
		return fmt.Errorf("encoding request body: %w", rc.bodyErr)
	}

	rc.Method = strings.ToUpper(rc.Method)
	switch rc.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, rc.Method)
	}

	if rc.MaxRedirects < 0 {
		rc.MaxRedirects = 0
	}
	return nil
}

// payload returns the body to transmit, substituting the upload file at
// Path for POST/PUT calls without an explicit body.
func (rc *RequestConfig) payload() Body {
	if rc.Body.IsEmpty() && rc.Path != "" &&
		(rc.Method == http.MethodPost || rc.Method == http.MethodPut) {
		return fileBody(rc.Path)
	}
	return rc.Body
}

// downloads reports whether the response is written to disk.
func (rc *RequestConfig) downloads() bool {
	return !rc.Stream && rc.Path != "" && rc.Method == http.MethodGet
}
