package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// ErrContentLengthMismatch is returned when a download ends before the
// declared Content-Length was received.
var ErrContentLengthMismatch = errors.New("download: content length mismatch")

// writeFile streams body into dest through a temporary file in the same
// directory, renamed into place once the data is synced. dest is never
// left half-written; the temporary file is removed on any failure.
func writeFile(
	ctx context.Context,
	logger zerolog.Logger,
	body io.Reader,
	contentLength int64,
	dest string,
) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".courier-dl-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	var done bool
	defer func() {
		if err := tmp.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			logger.Error().Err(err).Str("file", tmp.Name()).Msg("closing temp file")
		}
		if !done {
			if err := os.Remove(tmp.Name()); err != nil {
				logger.Error().Err(err).Str("file", tmp.Name()).Msg("removing temp file")
			}
		}
	}()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: body})
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", dest, err)
	}
	if contentLength >= 0 && n != contentLength {
		return n, fmt.Errorf("%w: expected %d bytes, got %d", ErrContentLengthMismatch, contentLength, n)
	}

	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, fmt.Errorf("renaming temp file: %w", err)
	}

	done = true
	return n, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
