package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

func TestNewPageScrapeValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing page_url", Options{"pattern": `v([\d.]+)`, "url": "https://x/app.pkg"}},
		{"missing pattern", Options{"page_url": "https://x/downloads", "url": "https://x/app.pkg"}},
		{"missing url", Options{"page_url": "https://x/downloads", "pattern": `v([\d.]+)`}},
		{"pattern without capture group", Options{
			"page_url": "https://x/downloads", "pattern": `v[\d.]+`, "url": "https://x/app.pkg",
		}},
		{"unknown option", Options{
			"page_url": "https://x/downloads", "pattern": `v([\d.]+)`, "url": "https://x/app.pkg",
			"selector": "#version",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPageScrape(tt.opts, testPlatform())
			var confErr *ConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("NewPageScrape() error = %T (%v), want *ConfigurationError", err, err)
			}
		})
	}
}

func scrapeServer(t *testing.T, pageHTML string, artifact []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var pageHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/downloads", func(w http.ResponseWriter, r *http.Request) {
		pageHits.Add(1)
		fmt.Fprint(w, pageHTML)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &pageHits
}

func TestPageScrapeProbe(t *testing.T) {
	page := `<html><h1>Downloads</h1><p>Latest release: v5.2.0 (stable)</p></html>`
	server, _ := scrapeServer(t, page, nil)

	s, err := NewPageScrape(Options{
		"page_url": server.URL + "/downloads",
		"pattern":  `Latest release: v([\d.]+)`,
		"url":      server.URL + "/files/app-{version}.pkg",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	rec, err := s.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
	if rec.Raw != "5.2.0" {
		t.Errorf("Raw = %q, want 5.2.0", rec.Raw)
	}
}

func TestPageScrapeProbeNoMatch(t *testing.T) {
	server, _ := scrapeServer(t, `<html>nothing versioned here</html>`, nil)

	s, err := NewPageScrape(Options{
		"page_url": server.URL + "/downloads",
		"pattern":  `Latest release: v([\d.]+)`,
		"url":      server.URL + "/files/app-{version}.pkg",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Probe(context.Background()); err == nil {
		t.Error("Probe() should fail when the page never mentions a version")
	}
}

func TestPageScrapeResolveAndFetch(t *testing.T) {
	artifact := []byte("scraped payload")
	page := `<a href="/files/app-5.2.0.pkg">Latest release: v5.2.0</a>`
	server, pageHits := scrapeServer(t, page, artifact)

	s, err := NewPageScrape(Options{
		"page_url": server.URL + "/downloads",
		"pattern":  `Latest release: v([\d.]+)`,
		"url":      server.URL + "/files/app-{version}.pkg",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	destDir := t.TempDir()
	ver, res, err := s.ResolveAndFetch(context.Background(), testEngine(), ArtifactRequest{
		ApplicationID: "app", DestDir: destDir,
	})
	if err != nil {
		t.Fatalf("ResolveAndFetch() error: %v", err)
	}
	if ver.Raw != "5.2.0" {
		t.Errorf("version = %q", ver.Raw)
	}
	if want := filepath.Join(destDir, "app-5.2.0.pkg"); res.LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", res.LocalPath, want)
	}
	got, err := os.ReadFile(res.LocalPath)
	if err != nil || string(got) != string(artifact) {
		t.Errorf("artifact content = %q, %v", got, err)
	}
	if pageHits.Load() != 1 {
		t.Errorf("page hits = %d, want 1", pageHits.Load())
	}
}

func TestPageScrapeRepairSkipsPage(t *testing.T) {
	artifact := []byte("pinned payload")
	server, pageHits := scrapeServer(t, `Latest release: v9.0.0`, artifact)

	s, err := NewPageScrape(Options{
		"page_url": server.URL + "/downloads",
		"pattern":  `Latest release: v([\d.]+)`,
		"url":      server.URL + "/files/app-{version}.pkg",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	known := mustVersion(t, "5.2.0", version.SchemeSemantic)
	destDir := t.TempDir()
	ver, _, err := s.ResolveAndFetch(context.Background(), testEngine(), ArtifactRequest{
		ApplicationID: "app",
		DestDir:       destDir,
		DestPath:      filepath.Join(destDir, "app-5.2.0.pkg"),
		Known:         &known,
	})
	if err != nil {
		t.Fatalf("ResolveAndFetch() repair error: %v", err)
	}
	if ver.Raw != "5.2.0" {
		t.Errorf("repair version = %q, want the pinned 5.2.0", ver.Raw)
	}
	if pageHits.Load() != 0 {
		t.Errorf("page hits = %d, want 0 on repair", pageHits.Load())
	}
}
