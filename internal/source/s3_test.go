package source

import (
	"errors"
	"regexp"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

func TestNewS3BucketValidation(t *testing.T) {
	base := func() Options {
		return Options{
			"endpoint":    "minio.example.com:9000",
			"bucket":      "releases",
			"key_pattern": `app-([\d.]+)\.pkg$`,
		}
	}

	tests := []struct {
		name   string
		mutate func(Options)
	}{
		{"missing endpoint", func(o Options) { delete(o, "endpoint") }},
		{"missing bucket", func(o Options) { delete(o, "bucket") }},
		{"missing key_pattern", func(o Options) { delete(o, "key_pattern") }},
		{"key_pattern without capture group", func(o Options) { o["key_pattern"] = `app-[\d.]+\.pkg$` }},
		{"use_ssl junk", func(o Options) { o["use_ssl"] = "yep" }},
		{"access_key without secret_key", func(o Options) { o["access_key"] = "AKIA" }},
		{"secret_key without access_key", func(o Options) { o["secret_key"] = "shh" }},
		{"checksum_url not supported", func(o Options) { o["checksum_url"] = "https://x/sums.txt" }},
		{"bogus scheme", func(o Options) { o["scheme"] = "bogus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(opts)
			_, err := NewS3Bucket(opts, testPlatform())
			var confErr *ConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("NewS3Bucket() error = %T (%v), want *ConfigurationError", err, err)
			}
		})
	}
}

func TestNewS3BucketConstructs(t *testing.T) {
	s, err := NewS3Bucket(Options{
		"endpoint":    "minio.example.com:9000",
		"bucket":      "releases",
		"prefix":      "app/",
		"key_pattern": `app-([\d.]+)\.pkg$`,
		"access_key":  "AKIA",
		"secret_key":  "shh",
		"region":      "us-east-1",
		"use_ssl":     "false",
	}, testPlatform())
	if err != nil {
		t.Fatalf("NewS3Bucket() error: %v", err)
	}
	if s.Capabilities() != CapProbeVersion|CapDownloadFile {
		t.Errorf("Capabilities() = %v", s.Capabilities())
	}
}

func TestPickLatest(t *testing.T) {
	re := regexp.MustCompile(`app-([\d.]+)\.pkg$`)

	tests := []struct {
		name    string
		keys    []string
		wantKey string
		wantRaw string
		wantErr bool
	}{
		{
			name:    "ten beats nine",
			keys:    []string{"app/app-2.9.9.pkg", "app/app-2.10.0.pkg", "app/app-2.2.0.pkg"},
			wantKey: "app/app-2.10.0.pkg",
			wantRaw: "2.10.0",
		},
		{
			name:    "non-matching and junk keys skipped",
			keys:    []string{"app/README.md", "app/app-.pkg", "app/app-1.0.0.pkg"},
			wantKey: "app/app-1.0.0.pkg",
			wantRaw: "1.0.0",
		},
		{
			name:    "no candidates",
			keys:    []string{"app/README.md", "logos/logo.png"},
			wantErr: true,
		},
		{
			name:    "empty listing",
			keys:    nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, key, err := pickLatest(tt.keys, re, version.SchemeSemantic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("pickLatest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if rec.Raw != tt.wantRaw {
				t.Errorf("version = %q, want %q", rec.Raw, tt.wantRaw)
			}
		})
	}
}

func TestMatchKey(t *testing.T) {
	re := regexp.MustCompile(`app-(v?[\d.]+)\.pkg$`)
	keys := []string{"app/app-v1.2.3.pkg", "app/app-v2.0.0.pkg"}

	// Normalized comparison: the recorded 1.2.3 matches the v1.2.3 key.
	want := mustVersion(t, "1.2.3", version.SchemeSemantic)
	key, err := matchKey(keys, re, version.SchemeSemantic, want)
	if err != nil {
		t.Fatalf("matchKey() error: %v", err)
	}
	if key != "app/app-v1.2.3.pkg" {
		t.Errorf("key = %q", key)
	}

	gone := mustVersion(t, "0.9.0", version.SchemeSemantic)
	if _, err := matchKey(keys, re, version.SchemeSemantic, gone); err == nil {
		t.Error("matchKey() should fail when the version left the bucket")
	}
}
