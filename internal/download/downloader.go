// Package download fetches edited images listed in a manifest over a
// bounded worker pool.
package download

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const failedLogName = "_failed.txt"

const (
	statusDownloaded = "downloaded"
	statusExists     = "exists"
)

// Options configures one download run.
type Options struct {
	ManifestPath string
	OutputDir    string
	Limit        int
	Workers      int
	Timeout      time.Duration
}

// Failure records one URL that could not be fetched.
type Failure struct {
	URL    string
	Reason string
}

// Result summarizes a run. Failures appear in completion order.
type Result struct {
	Completed int
	Skipped   int
	Failures  []Failure
}

// ReadManifest loads URLs, one per line, honoring an optional limit.
func ReadManifest(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %q: %w", path, err)
	}
	defer f.Close()

	urls := make([]string, 0, 256)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
		if limit > 0 && len(urls) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest %q: %w", path, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs parsed from manifest %q", path)
	}
	return urls, nil
}

// Run downloads every manifest URL. Individual failures never abort the
// run; when any occurred they are written to _failed.txt under the
// output root.
func Run(ctx context.Context, opts Options) (Result, error) {
	urls, err := ReadManifest(opts.ManifestPath, opts.Limit)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir %q: %w", opts.OutputDir, err)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	client := &http.Client{Timeout: opts.Timeout}
	log.Printf("download_start urls=%d output=%s workers=%d", len(urls), opts.OutputDir, workers)

	var mu sync.Mutex
	var result Result

	group := &errgroup.Group{}
	group.SetLimit(workers)
	for _, rawURL := range urls {
		rawURL := rawURL
		group.Go(func() error {
			status := downloadOne(ctx, client, rawURL, opts.OutputDir)

			mu.Lock()
			switch status {
			case statusDownloaded:
				result.Completed++
			case statusExists:
				result.Skipped++
			default:
				result.Failures = append(result.Failures, Failure{URL: rawURL, Reason: status})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if len(result.Failures) > 0 {
		if err := writeFailureLog(opts.OutputDir, result.Failures); err != nil {
			return result, err
		}
	}
	log.Printf("download_done completed=%d skipped=%d failed=%d", result.Completed, result.Skipped, len(result.Failures))
	return result, nil
}

// downloadOne fetches one URL into the output tree, skipping targets
// that already exist. The return value is a status, never an error: a
// stuck URL must not stop the pool.
func downloadOne(ctx context.Context, client *http.Client, rawURL, root string) string {
	target := filepath.Join(root, relativePath(rawURL))
	if _, err := os.Stat(target); err == nil {
		return statusExists
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Sprintf("error %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Sprintf("error %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Sprintf("error %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Sprintf("http %d", resp.StatusCode)
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Sprintf("error %v", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Sprintf("error %v", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Sprintf("error %v", err)
	}
	return statusDownloaded
}

// relativePath derives the target path from the URL path, keeping the
// subtree from the "images/" marker when one is present.
func relativePath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	path := strings.TrimPrefix(u.Path, "/")
	if idx := strings.Index(path, "/images/"); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return "unknown"
	}
	return filepath.FromSlash(path)
}

func writeFailureLog(root string, failures []Failure) error {
	path := filepath.Join(root, failedLogName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failure log %q: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, failure := range failures {
		fmt.Fprintf(w, "%s\t%s\n", failure.Reason, failure.URL)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write failure log %q: %w", path, err)
	}
	return nil
}
