package main

import (
	"strings"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/testutil"
)

func TestRootHelpListsSubcommands(t *testing.T) {
	stdout, _, err := runNapt("--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"check", "status", "history"} {
		if !strings.Contains(stdout, sub) {
			t.Errorf("help output missing %q:\n%s", sub, stdout)
		}
	}
}

func TestRootVersionFlag(t *testing.T) {
	stdout, _, err := runNapt("--version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, Version) {
		t.Errorf("version output %q missing %q", stdout, Version)
	}
}

func TestRootRejectsBadOutputFormat(t *testing.T) {
	testutil.Isolate(t)

	_, _, err := runNapt("status", "--output", "bogus")
	if err == nil {
		t.Fatal("expected error for unknown output format")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Errorf("error should name the bad format: %v", err)
	}
}

func TestRootRejectsBadLogLevel(t *testing.T) {
	testutil.Isolate(t)

	_, _, err := runNapt("status", "--log-level", "chatty")
	if err == nil {
		t.Fatal("expected error for unknown log level")
	}
	if !strings.Contains(err.Error(), "chatty") {
		t.Errorf("error should name the bad level: %v", err)
	}
}

func TestRootSettingsFlagOverridesDefaults(t *testing.T) {
	env := testutil.Isolate(t)
	env.WriteSettings(t, "store_path = \"" + env.DataDir + "/custom.json\"\n")

	// An explicit --settings path that does not exist must fail loudly
	// rather than fall back to defaults.
	_, _, err := runNapt("status", "--settings", env.ConfigDir+"/nope.toml")
	if err == nil {
		t.Fatal("expected error for missing explicit settings file")
	}

	// The written file is picked up through the default lookup.
	stdout, stderr, err := runNapt("status")
	if err != nil {
		t.Fatalf("status failed: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(stdout, "No applications tracked yet") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}
