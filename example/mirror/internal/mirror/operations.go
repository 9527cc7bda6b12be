package mirror

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kroma-labs/courier/example/mirror/internal/config"
	"github.com/kroma-labs/courier/httpclient"
)

// Manifest lists the files published upstream.
type Manifest struct {
	Version string  `json:"version"`
	Files   []Entry `json:"files"`
}

// Entry is one file of a manifest.
type Entry struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// FetchManifest downloads and decodes the upstream manifest, following
// redirects to wherever it is currently hosted.
func (m *Mirror) FetchManifest(ctx context.Context) (*Manifest, error) {
	resp, err := m.client.Request("FetchManifest").
		Header("Accept", "application/json").
		Get(ctx, config.DefaultManifestURL)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch manifest: HTTP %d", resp.StatusCode)
	}
	if resp.IsMalformedJSON() {
		return nil, errors.New("fetch manifest: malformed JSON")
	}

	var manifest Manifest
	if err := resp.Decode(&manifest); err != nil {
		return nil, err
	}
	log.Printf("📖 Manifest %s lists %d files (%d redirects)", manifest.Version, len(manifest.Files), resp.Redirects)
	return &manifest, nil
}

// Sync downloads every manifest entry concurrently into the mirror
// directory and returns the written paths.
func (m *Mirror) Sync(ctx context.Context, manifest *Manifest) ([]string, error) {
	calls := make([]*httpclient.Call, 0, len(manifest.Files))
	for _, entry := range manifest.Files {
		calls = append(calls, m.client.Request("DownloadFile").
			Download(m.dir).
			Filename(entry.Name).
			Go(ctx, entry.URL))
	}

	var files []string
	var errs []error
	for i, call := range calls {
		resp, err := call.Await(ctx)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", manifest.Files[i].URL, err))
		case !resp.IsSuccess():
			errs = append(errs, fmt.Errorf("%s: HTTP %d", manifest.Files[i].URL, resp.StatusCode))
		default:
			files = append(files, resp.File)
		}
	}
	log.Printf("✅ Mirrored %d/%d files", len(files), len(calls))
	return files, errors.Join(errs...)
}

// TailEvents streams the upstream change feed line by line until ctx is
// done or the feed ends.
func (m *Mirror) TailEvents(ctx context.Context, onEvent func(string)) error {
	resp, err := m.client.Request("TailEvents").
		Stream(true).
		Header("Accept", "text/event-stream").
		Get(ctx, config.DefaultEventsURL)
	if err != nil {
		return err
	}
	body := resp.Stream()
	if body == nil {
		return errors.New("tail events: no stream")
	}
	defer body.Close()

	if !resp.IsSuccess() {
		return fmt.Errorf("tail events: HTTP %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			onEvent(line)
		}
	}
	return scanner.Err()
}
