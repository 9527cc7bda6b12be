package httpclient

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// MalformedJSON is returned as the decoded body when a response declares
// application/json but its payload does not parse. The exchange itself
// succeeded, so this is a value and not an error.
const MalformedJSON = "Malformed JSON."

// DecodeBody decodes a fully buffered response payload by its declared
// content type.
//
//   - application/json: strict JSON parse, MalformedJSON on failure
//   - any other declared type: the UTF-8 text verbatim
//   - no Content-Type header: JSON when it parses, the text otherwise
//
// An empty payload decodes to nil.
func DecodeBody(header http.Header, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	values := header.Values("Content-Type")
	if len(values) == 0 {
		if v, ok := parseJSON(body); ok {
			return v
		}
		return string(body)
	}

	if mimeType(values[0]) != "application/json" {
		return string(body)
	}

	if v, ok := parseJSON(body); ok {
		return v
	}
	return MalformedJSON
}

// mimeType returns the media type of a Content-Type value: everything
// before the first ';', lower-cased and trimmed.
func mimeType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func parseJSON(body []byte) (any, bool) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, false
	}
	return v, true
}
