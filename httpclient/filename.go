package httpclient

import (
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// fallbackFilename names downloads whose URI path has no base name.
const fallbackFilename = "download"

// ResolveFilename returns the output file path for a download into dir.
//
// The name is chosen in priority order: explicit, the filename in a
// Content-Disposition header, then the last segment of requestPath. Only
// the base name of the chosen value is used, so a hostile header cannot
// place the file outside dir.
func ResolveFilename(header http.Header, dir, requestPath, explicit string) string {
	name := explicit
	if name == "" {
		name = dispositionFilename(header.Get("Content-Disposition"))
	}
	if name == "" {
		name = pathBase(requestPath)
	}

	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		name = fallbackFilename
	}

	return filepath.Join(dir, name)
}

// dispositionFilename extracts the value after the first '=' of a
// Content-Disposition header, without quotes or trailing parameters.
func dispositionFilename(cd string) string {
	_, value, found := strings.Cut(cd, "=")
	if !found {
		return ""
	}
	value, _, _ = strings.Cut(value, ";")
	value = strings.TrimSpace(value)
	value = strings.Trim(value, `"'`)

	// filename*=UTF-8''name%20with%20spaces
	if _, encoded, ok := strings.Cut(value, "''"); ok {
		if decoded, err := url.PathUnescape(encoded); err == nil {
			value = decoded
		}
	}
	return value
}

// pathBase returns the last segment of a URI path, ignoring any query.
func pathBase(requestPath string) string {
	p, _, _ := strings.Cut(requestPath, "?")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	base := path.Base(p)
	if base == "/" || base == "." || base == "" {
		return ""
	}
	return base
}
