package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/store"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/testutil"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// seedRecord writes one record (and optionally its artifact file) into the
// isolated store.
func seedRecord(t *testing.T, env *testutil.Env, appID, ver, artifactBody string, corrupt bool) {
	t.Helper()

	rec := &store.Record{
		ApplicationID: appID,
		LastCheckedAt: time.Now().UTC(),
		LastChangedAt: time.Now().UTC(),
	}
	if ver != "" {
		v, err := version.New(ver, version.SchemeSemantic, "test")
		if err != nil {
			t.Fatalf("build version: %v", err)
		}
		rec.KnownVersion = &v
	}
	if artifactBody != "" {
		path := filepath.Join(env.DataDir, "downloads", appID, appID+".bin")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create artifact dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(artifactBody), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		hash, err := verify.FileSHA256(path)
		if err != nil {
			t.Fatalf("hash artifact: %v", err)
		}
		rec.ResolvedFilePath = path
		rec.ContentHash = hash
		if corrupt {
			if err := os.WriteFile(path, []byte("other bytes"), 0o644); err != nil {
				t.Fatalf("corrupt artifact: %v", err)
			}
		}
	}

	st, err := store.Load(env.StorePath())
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if err := st.Put(rec); err != nil {
		t.Fatalf("put record: %v", err)
	}
	if err := st.Flush(); err != nil {
		t.Fatalf("flush store: %v", err)
	}
}

func TestStatusEmptyStore(t *testing.T) {
	testutil.Isolate(t)

	stdout, stderr, err := runNapt("status")
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "No applications tracked yet") {
		t.Errorf("expected empty-store message, got:\n%s", stdout)
	}
}

func TestStatusArtifactHealth(t *testing.T) {
	env := testutil.Isolate(t)

	seedRecord(t, env, "healthy", "1.0.0", "good bytes", false)
	seedRecord(t, env, "tampered", "2.0.0", "good bytes", true)
	seedRecord(t, env, "bare", "3.0.0", "", false)

	// A record whose file was deleted after the check.
	seedRecord(t, env, "vanished", "4.0.0", "gone soon", false)
	if err := os.Remove(filepath.Join(env.DataDir, "downloads", "vanished", "vanished.bin")); err != nil {
		t.Fatalf("remove artifact: %v", err)
	}

	stdout, stderr, err := runNapt("status", "--output", "json")
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}

	var rows []statusRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout)
	}

	want := map[string]string{
		"healthy":  artifactOK,
		"tampered": artifactModified,
		"bare":     artifactNone,
		"vanished": artifactMissing,
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	for _, row := range rows {
		if got := want[row.ApplicationID]; row.Artifact != got {
			t.Errorf("%s: artifact = %q, want %q", row.ApplicationID, row.Artifact, got)
		}
	}
}

func TestStatusTextOutput(t *testing.T) {
	env := testutil.Isolate(t)
	seedRecord(t, env, "demo", "1.2.3", "bytes", false)

	stdout, stderr, err := runNapt("status")
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "demo") || !strings.Contains(stdout, "1.2.3") {
		t.Errorf("text output missing app or version:\n%s", stdout)
	}
	if !strings.Contains(stdout, "artifact=ok") {
		t.Errorf("text output missing artifact health:\n%s", stdout)
	}
}
