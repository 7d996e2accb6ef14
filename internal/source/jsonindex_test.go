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

func TestLookupPath(t *testing.T) {
	doc := map[string]any{
		"latest": map[string]any{
			"version": "3.1.4",
			"build":   float64(42),
			"empty":   "",
		},
		"releases": []any{
			map[string]any{"url": "https://dl.example.com/app-3.1.4.pkg"},
		},
		"flag": true,
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"nested string", "latest.version", "3.1.4", false},
		{"integer renders without decimal", "latest.build", "42", false},
		{"array index", "releases.0.url", "https://dl.example.com/app-3.1.4.pkg", false},
		{"missing key", "latest.nope", "", true},
		{"empty string value", "latest.empty", "", true},
		{"non-numeric array segment", "releases.first.url", "", true},
		{"array index out of range", "releases.7.url", "", true},
		{"descend into scalar", "latest.version.more", "", true},
		{"terminal not a scalar", "flag", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lookupPath(doc, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("lookupPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("lookupPath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewJSONIndexValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing index_url", Options{"version_path": "v", "url_path": "u"}},
		{"missing version_path", Options{"index_url": "https://x/index.json", "url_path": "u"}},
		{"url and url_path together", Options{
			"index_url": "https://x/index.json", "version_path": "v",
			"url_path": "u", "url": "https://x/app-{version}.pkg",
		}},
		{"neither url nor url_path", Options{
			"index_url": "https://x/index.json", "version_path": "v",
		}},
		{"unknown option", Options{
			"index_url": "https://x/index.json", "version_path": "v", "url_path": "u",
			"json_path": "v",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJSONIndex(tt.opts, testPlatform())
			var confErr *ConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("NewJSONIndex() error = %T (%v), want *ConfigurationError", err, err)
			}
		})
	}
}

// jsonIndexServer serves an update feed and the artifact it points at,
// counting index reads.
func jsonIndexServer(t *testing.T, ver string, artifact []byte) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var indexHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/index.json", func(w http.ResponseWriter, r *http.Request) {
		indexHits.Add(1)
		fmt.Fprintf(w, `{"latest": {"version": %q, "download": "http://%s/files/app-%s.pkg"}}`,
			ver, r.Host, ver)
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		w.Write(artifact)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &indexHits
}

func TestJSONIndexProbe(t *testing.T) {
	server, _ := jsonIndexServer(t, "3.1.4", []byte("x"))

	s, err := NewJSONIndex(Options{
		"index_url":    server.URL + "/index.json",
		"version_path": "latest.version",
		"url_path":     "latest.download",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	rec, err := s.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error: %v", err)
	}
	if rec.Raw != "3.1.4" {
		t.Errorf("Raw = %q, want 3.1.4", rec.Raw)
	}
}

func TestJSONIndexResolveAndFetchURLPath(t *testing.T) {
	artifact := []byte("feed payload")
	server, indexHits := jsonIndexServer(t, "3.1.4", artifact)

	s, err := NewJSONIndex(Options{
		"index_url":    server.URL + "/index.json",
		"version_path": "latest.version",
		"url_path":     "latest.download",
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
	if ver.Raw != "3.1.4" {
		t.Errorf("version = %q", ver.Raw)
	}
	if want := filepath.Join(destDir, "app-3.1.4.pkg"); res.LocalPath != want {
		t.Errorf("LocalPath = %q, want %q", res.LocalPath, want)
	}
	got, err := os.ReadFile(res.LocalPath)
	if err != nil || string(got) != string(artifact) {
		t.Errorf("artifact content = %q, %v", got, err)
	}
	if indexHits.Load() != 1 {
		t.Errorf("index hits = %d, want 1", indexHits.Load())
	}
}

func TestJSONIndexRepairWithTemplateSkipsIndex(t *testing.T) {
	artifact := []byte("pinned payload")
	server, indexHits := jsonIndexServer(t, "9.9.9", artifact)

	s, err := NewJSONIndex(Options{
		"index_url":    server.URL + "/index.json",
		"version_path": "latest.version",
		"url":          server.URL + "/files/app-{version}.pkg",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	known := mustVersion(t, "3.1.4", version.SchemeSemantic)
	destDir := t.TempDir()
	ver, res, err := s.ResolveAndFetch(context.Background(), testEngine(), ArtifactRequest{
		ApplicationID: "app",
		DestDir:       destDir,
		DestPath:      filepath.Join(destDir, "app-3.1.4.pkg"),
		Known:         &known,
	})
	if err != nil {
		t.Fatalf("ResolveAndFetch() repair error: %v", err)
	}
	if ver.Raw != "3.1.4" {
		t.Errorf("repair version = %q, want the pinned 3.1.4", ver.Raw)
	}
	if res.LocalPath != filepath.Join(destDir, "app-3.1.4.pkg") {
		t.Errorf("LocalPath = %q", res.LocalPath)
	}
	// A template repair must not read the index at all.
	if indexHits.Load() != 0 {
		t.Errorf("index hits = %d, want 0", indexHits.Load())
	}
}

func TestJSONIndexRepairWithURLPathReportsMovedVersion(t *testing.T) {
	// The feed has moved on to 4.0.0 since 3.1.4 was recorded. A url_path
	// repair can only fetch what the feed points at now, and must say so.
	artifact := []byte("moved payload")
	server, _ := jsonIndexServer(t, "4.0.0", artifact)

	s, err := NewJSONIndex(Options{
		"index_url":    server.URL + "/index.json",
		"version_path": "latest.version",
		"url_path":     "latest.download",
	}, testPlatform())
	if err != nil {
		t.Fatal(err)
	}

	known := mustVersion(t, "3.1.4", version.SchemeSemantic)
	ver, _, err := s.ResolveAndFetch(context.Background(), testEngine(), ArtifactRequest{
		ApplicationID: "app",
		DestDir:       t.TempDir(),
		Known:         &known,
	})
	if err != nil {
		t.Fatalf("ResolveAndFetch() error: %v", err)
	}
	if ver.Raw != "4.0.0" {
		t.Errorf("version = %q, want the feed's current 4.0.0", ver.Raw)
	}
}

func TestJSONIndexTemplateRefresh(t *testing.T) {
	artifact := []byte("template payload")
	server, indexHits := jsonIndexServer(t, "3.1.4", artifact)

	s, err := NewJSONIndex(Options{
		"index_url":    server.URL + "/index.json",
		"version_path": "latest.version",
		"url":          server.URL + "/files/app-{version}.pkg",
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
	if ver.Raw != "3.1.4" {
		t.Errorf("version = %q", ver.Raw)
	}
	if want := filepath.Join(destDir, "app-3.1.4.pkg"); res.LocalPath != want {
		t.Errorf("LocalPath = %q, want the template-expanded name %q", res.LocalPath, want)
	}
	if indexHits.Load() != 1 {
		t.Errorf("index hits = %d, want 1", indexHits.Load())
	}
}
