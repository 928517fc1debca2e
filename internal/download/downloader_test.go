package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeManifest(t *testing.T, urls []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.txt")
	if err := os.WriteFile(path, []byte(strings.Join(urls, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestReadManifestSkipsBlankLinesAndHonorsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.txt")
	content := "https://a/images/train/1.jpg\n\n  \nhttps://a/images/train/2.jpg\nhttps://a/images/train/3.jpg\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	urls, err := ReadManifest(path, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(urls) != 3 {
		t.Fatalf("urls got %d want 3", len(urls))
	}

	urls, err = ReadManifest(path, 2)
	if err != nil {
		t.Fatalf("read with limit: %v", err)
	}
	if len(urls) != 2 || urls[1] != "https://a/images/train/2.jpg" {
		t.Fatalf("limited urls got %v", urls)
	}
}

func TestReadManifestEmptyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := ReadManifest(path, 0); err == nil {
		t.Fatalf("empty manifest must fail")
	}
}

func TestRelativePathKeepsImagesSubtree(t *testing.T) {
	cases := []struct {
		rawURL string
		want   string
	}{
		{"https://host/bucket/images/train/ab/cd.jpg", filepath.FromSlash("images/train/ab/cd.jpg")},
		{"https://host/images/x.jpg", filepath.FromSlash("images/x.jpg")},
		{"https://host/plain/path.jpg", filepath.FromSlash("plain/path.jpg")},
		{"://bad", "unknown"},
	}
	for _, tc := range cases {
		if got := relativePath(tc.rawURL); got != tc.want {
			t.Errorf("relativePath(%q) = %q want %q", tc.rawURL, got, tc.want)
		}
	}
}

func TestRunDownloadsSkipsAndRecordsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "jpeg-bytes")
	}))
	defer server.Close()

	outputDir := t.TempDir()
	existing := filepath.Join(outputDir, "images", "train", "seen.jpg")
	if err := os.MkdirAll(filepath.Dir(existing), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(existing, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed existing file: %v", err)
	}

	manifest := writeManifest(t, []string{
		server.URL + "/bucket/images/train/fresh.jpg",
		server.URL + "/bucket/images/train/seen.jpg",
		server.URL + "/bucket/images/train/broken.jpg",
	})

	result, err := Run(context.Background(), Options{
		ManifestPath: manifest,
		OutputDir:    outputDir,
		Workers:      4,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Completed != 1 || result.Skipped != 1 || len(result.Failures) != 1 {
		t.Fatalf("result got %+v", result)
	}
	if result.Failures[0].Reason != "http 404" {
		t.Fatalf("failure reason got %q", result.Failures[0].Reason)
	}

	raw, err := os.ReadFile(filepath.Join(outputDir, "images", "train", "fresh.jpg"))
	if err != nil || string(raw) != "jpeg-bytes" {
		t.Fatalf("downloaded file wrong: %q %v", raw, err)
	}
	if raw, _ := os.ReadFile(existing); string(raw) != "old" {
		t.Fatalf("existing file must not be overwritten")
	}

	logRaw, err := os.ReadFile(filepath.Join(outputDir, failedLogName))
	if err != nil {
		t.Fatalf("failure log missing: %v", err)
	}
	if !strings.Contains(string(logRaw), "broken.jpg") {
		t.Fatalf("failure log missing URL: %q", logRaw)
	}
}

func TestRunCleanRunWritesNoFailureLog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "jpeg-bytes")
	}))
	defer server.Close()

	outputDir := t.TempDir()
	manifest := writeManifest(t, []string{server.URL + "/images/a.jpg", server.URL + "/images/b.jpg"})

	result, err := Run(context.Background(), Options{
		ManifestPath: manifest,
		OutputDir:    outputDir,
		Workers:      2,
		Timeout:      5 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Completed != 2 || len(result.Failures) != 0 {
		t.Fatalf("result got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(outputDir, failedLogName)); !os.IsNotExist(err) {
		t.Fatalf("clean run must not write %s", failedLogName)
	}
}
