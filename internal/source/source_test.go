package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
)

func TestCapabilityHas(t *testing.T) {
	both := CapProbeVersion | CapDownloadFile

	if !both.Has(CapProbeVersion) || !both.Has(CapDownloadFile) || !both.Has(both) {
		t.Error("combined capability should include both tags")
	}
	if CapDownloadFile.Has(CapProbeVersion) {
		t.Error("download-only capability should not report probing")
	}
}

func TestCapabilityString(t *testing.T) {
	tests := []struct {
		c    Capability
		want string
	}{
		{CapProbeVersion, "probes_version"},
		{CapDownloadFile, "downloads_file"},
		{CapProbeVersion | CapDownloadFile, "probes_version|downloads_file"},
		{0, "none"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("Capability(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}

func TestConfigurationErrorFormat(t *testing.T) {
	withOption := &ConfigurationError{Component: "url-pattern", Option: "pattern", Reason: "required"}
	if got := withOption.Error(); got != `url-pattern: option "pattern": required` {
		t.Errorf("Error() = %q", got)
	}

	whole := &ConfigurationError{Component: "nope", Reason: "unknown strategy"}
	if got := whole.Error(); got != "nope: unknown strategy" {
		t.Errorf("Error() = %q", got)
	}
}

func TestOptionsHelpers(t *testing.T) {
	opts := Options{"url": "  https://example.com  ", "empty": "   "}

	got, err := opts.Required("test", "url")
	if err != nil || got != "https://example.com" {
		t.Errorf("required() = %q, %v", got, err)
	}

	if _, err := opts.Required("test", "empty"); err == nil {
		t.Error("required() on blank value should error")
	}
	var confErr *ConfigurationError
	_, err = opts.Required("test", "missing")
	if !errors.As(err, &confErr) {
		t.Errorf("required() error = %T, want *ConfigurationError", err)
	}

	if got := opts.Get("missing", "fallback"); got != "fallback" {
		t.Errorf("get() = %q, want fallback", got)
	}
}

func TestOptionsScheme(t *testing.T) {
	s, err := Options{}.scheme("test", "numeric-quad")
	if err != nil || string(s) != "numeric-quad" {
		t.Errorf("scheme() default = %q, %v", s, err)
	}

	s, err = Options{"scheme": "lexicographic"}.scheme("test", "semantic")
	if err != nil || string(s) != "lexicographic" {
		t.Errorf("scheme() = %q, %v", s, err)
	}

	if _, err := (Options{"scheme": "bogus"}).scheme("test", "semantic"); err == nil {
		t.Error("scheme() should reject unknown scheme names")
	}
}

func TestOptionsRejectUnknown(t *testing.T) {
	opts := Options{"url": "x", "patern": "typo"}

	err := opts.RejectUnknown("test", "url", "pattern")
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("rejectUnknown() error = %v, want *ConfigurationError", err)
	}
	if confErr.Option != "patern" {
		t.Errorf("offending option = %q, want the typo", confErr.Option)
	}

	if err := opts.RejectUnknown("test", "url", "patern"); err != nil {
		t.Errorf("rejectUnknown() with all keys allowed = %v", err)
	}
}

func TestExpandVersionToken(t *testing.T) {
	got, err := expandVersionToken("t", "url", "https://dl.example.com/v{version}/app-{version}.pkg", "1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if got != "https://dl.example.com/v1.2.3/app-1.2.3.pkg" {
		t.Errorf("expanded = %q", got)
	}

	got, err = expandVersionToken("t", "url", "https://dl.example.com/app.pkg", "")
	if err != nil || got != "https://dl.example.com/app.pkg" {
		t.Errorf("tokenless template = %q, %v", got, err)
	}

	if _, err := expandVersionToken("t", "url", "https://x/{version}", ""); err == nil {
		t.Error("token without a version should error")
	}
}

func TestResolveDestination(t *testing.T) {
	req := ArtifactRequest{DestDir: "/cache/apps"}

	dest, name, err := resolveDestination("t", req, "", "https://dl.example.com/path/app-1.2.pkg?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if dest != filepath.Join("/cache/apps", "app-1.2.pkg") || name != "app-1.2.pkg" {
		t.Errorf("derived dest = %q name = %q", dest, name)
	}

	dest, name, err = resolveDestination("t", req, "renamed.pkg", "https://dl.example.com/app.pkg")
	if err != nil || name != "renamed.pkg" || dest != filepath.Join("/cache/apps", "renamed.pkg") {
		t.Errorf("filename option dest = %q name = %q, err %v", dest, name, err)
	}

	pinned := ArtifactRequest{DestDir: "/cache/apps", DestPath: "/cache/apps/old-name.pkg"}
	dest, name, err = resolveDestination("t", pinned, "ignored.pkg", "https://x/whatever")
	if err != nil || dest != "/cache/apps/old-name.pkg" || name != "old-name.pkg" {
		t.Errorf("pinned dest = %q name = %q, err %v", dest, name, err)
	}

	if _, _, err := resolveDestination("t", req, "", "https://dl.example.com/"); err == nil {
		t.Error("underivable filename should error")
	}
}

func TestMetadataGet(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("Accept", "application/json")
	body, err := metadataGet(context.Background(), server.Client(), server.URL, 1024, header)
	if err != nil {
		t.Fatalf("metadataGet() error: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if gotUA != fetch.DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, fetch.DefaultUserAgent)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestMetadataGetStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := metadataGet(context.Background(), server.Client(), server.URL, 1024, nil)
	var transferErr *fetch.TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("error = %T (%v), want *fetch.TransferError", err, err)
	}
	if transferErr.Status != http.StatusForbidden {
		t.Errorf("Status = %d, want 403", transferErr.Status)
	}
}

func TestMetadataGetBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	body, err := metadataGet(context.Background(), server.Client(), server.URL, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 10 {
		t.Errorf("read %d bytes, want the 10-byte limit", len(body))
	}
}
