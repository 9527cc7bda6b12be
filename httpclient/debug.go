package httpclient

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// generateCurlCommand renders a hop as an equivalent cURL command.
//
// Proxied hops are rendered with -x and the absolute target. Text and
// binary payloads are inlined, upload files are referenced with '@path',
// and reader payloads are omitted since they cannot be read twice.
//
// Example output:
//
//	curl -X POST 'https://api.example.com/users' -H 'Content-Type: application/json' -d '{"name":"John"}'
func generateCurlCommand(req *http.Request, body Body) string {
	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	target := req.URL.String()
	if strings.Contains(req.URL.Opaque, "://") {
		target = req.URL.Opaque
		parts = append(parts, "-x", quote(req.URL.Scheme+"://"+req.URL.Host))
	} else if req.Host != "" && req.Host != req.URL.Host {
		parts = append(parts, "-H", quote("Host: "+req.Host))
	}
	parts = append(parts, quote(target))

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range req.Header[k] {
			parts = append(parts, "-H", quote(k+": "+v))
		}
	}

	switch {
	case body.kind == BodyText:
		parts = append(parts, "-d", quote(body.text))
	case body.kind == BodyBinary:
		parts = append(parts, "--data-binary", quote(string(body.data)))
	case body.file != "":
		parts = append(parts, "--data-binary", quote("@"+body.file))
	}

	return strings.Join(parts, " ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// logHop logs an outgoing hop.
func logHop(logger zerolog.Logger, op string, req *http.Request, hop int) {
	target := req.URL.String()
	if strings.Contains(req.URL.Opaque, "://") {
		target = req.URL.Opaque
	}
	logger.Debug().
		Str("operation", op).
		Str("method", req.Method).
		Str("url", target).
		Str("host", req.Host).
		Int("hop", hop).
		Msg("HTTP request")
}

// logResponse logs a hop's response.
func logResponse(logger zerolog.Logger, op string, resp *http.Response, duration time.Duration) {
	logger.Debug().
		Str("operation", op).
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Dur("duration_ms", duration).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}

// logRedirect logs a followed redirect.
func logRedirect(logger zerolog.Logger, op string, status int, from, to string, count int) {
	logger.Debug().
		Str("operation", op).
		Int("status", status).
		Str("from", from).
		Str("location", to).
		Int("redirects", count).
		Msg("HTTP redirect")
}

// logDownload logs a completed file download.
func logDownload(logger zerolog.Logger, op, file string, size int64) {
	logger.Debug().
		Str("operation", op).
		Str("file", file).
		Str("size", formatBytes(size)).
		Msg("HTTP download")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
