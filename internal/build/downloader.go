package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownFileSize = errors.New("unknown file size")
	ErrFileTooLarge    = errors.New("file too large")
)

const defaultDownloadConcurrency = 4

// Downloader is the download stage.
// It fetches every build file into the workspace and fails on the first error.
type Downloader struct {
	Workspaces *Workspaces // required
	MaxSize    int64       // required

	// TrustedHosts are hostname patterns (path.Match syntax) whose files
	// may be fetched without a known size.
	TrustedHosts []string

	Client      *http.Client // default: cleanhttp.DefaultPooledClient()
	Concurrency int          // default: 4
}

func (d *Downloader) Run(ctx context.Context, b *Build) error {
	client := d.Client
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDownloadConcurrency
	}
	dir := d.Workspaces.Dir(b.ID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, f := range b.Files {
		g.Go(func() error {
			return d.download(gctx, client, dir, f)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("build.Downloader: %w", err)
	}
	return nil
}

func (d *Downloader) download(ctx context.Context, client *http.Client, dir string, f File) error {
	u, err := url.Parse(f.URL)
	if err != nil {
		return err
	}
	trusted := d.trusted(u.Hostname())

	size, err := probeSize(ctx, client, f.URL)
	if err != nil {
		return err
	}
	if size < 0 && !trusted {
		return fmt.Errorf("%w for %q", ErrUnknownFileSize, f.URL)
	}
	if size > d.MaxSize {
		return fmt.Errorf("%w for %q", ErrFileTooLarge, f.URL)
	}

	target := filepath.Join(dir, filepath.FromSlash(f.Path))
	if err = os.MkdirAll(filepath.Dir(target), 0o777); err != nil {
		return err
	}

	limit := d.MaxSize
	if trusted {
		limit = -1
	}
	return fetch(ctx, client, f.URL, target, limit)
}

func (d *Downloader) trusted(host string) bool {
	for _, pattern := range d.TrustedHosts {
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

// probeSize returns the size reported by a HEAD request or -1 if it is unknown.
func probeSize(ctx context.Context, client *http.Client, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("got status %d for %q", resp.StatusCode, rawURL)
	}
	return resp.ContentLength, nil
}

// fetch writes the body at rawURL to target.
// The body goes to a temporary file first so a failed fetch never leaves
// a partial target behind. A negative limit means no limit.
func fetch(ctx context.Context, client *http.Client, rawURL, target string, limit int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("got status %d for %q", resp.StatusCode, rawURL)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	var body io.Reader = resp.Body
	if limit >= 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	n, err := io.Copy(tmp, body)
	if err != nil {
		return err
	}
	if limit >= 0 && n > limit {
		return fmt.Errorf("%w for %q", ErrFileTooLarge, rawURL)
	}
	if err = tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), target)
}
