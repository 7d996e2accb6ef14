package source

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
)

func testPlatform() *platform.Info {
	return &platform.Info{OS: "linux", Arch: "amd64", ArchRaw: "amd64"}
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry(DefaultFactories())

	want := []string{
		StrategyGitHubRelease,
		StrategyJSONIndex,
		StrategyPageScrape,
		StrategyS3Bucket,
		StrategyStatic,
		StrategyURLPattern,
	}
	if got := reg.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistryUnknownStrategy(t *testing.T) {
	reg := NewRegistry(DefaultFactories())

	_, err := reg.New("carrier-pigeon", Options{}, testPlatform())
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("error = %T (%v), want *ConfigurationError", err, err)
	}
	if !strings.Contains(confErr.Reason, StrategyStatic) {
		t.Errorf("error should list known strategies, got %q", confErr.Reason)
	}
}

func TestRegistryConstructsStrategy(t *testing.T) {
	reg := NewRegistry(DefaultFactories())

	s, err := reg.New(StrategyStatic, Options{"url": "https://dl.example.com/app.pkg"}, testPlatform())
	if err != nil {
		t.Fatalf("New(static) error: %v", err)
	}
	if s.Name() != StrategyStatic {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.Capabilities().Has(CapProbeVersion) {
		t.Error("static should not advertise a version probe")
	}
}

// Every built-in strategy must fail fast on an empty option set: required
// options are validated at construction, not at check time.
func TestDefaultFactoriesValidateOptions(t *testing.T) {
	reg := NewRegistry(DefaultFactories())

	for _, name := range reg.Names() {
		t.Run(name, func(t *testing.T) {
			_, err := reg.New(name, Options{}, testPlatform())
			var confErr *ConfigurationError
			if !errors.As(err, &confErr) {
				t.Errorf("New(%s, empty options) error = %T (%v), want *ConfigurationError", name, err, err)
			}
		})
	}
}

func TestRegistryCallerSuppliedFactory(t *testing.T) {
	called := false
	reg := NewRegistry(map[string]Factory{
		"custom": func(opts Options, plat *platform.Info) (Strategy, error) {
			called = true
			return NewStatic(Options{"url": "https://dl.example.com/app.pkg"}, plat)
		},
	})

	if _, err := reg.New("custom", Options{}, testPlatform()); err != nil {
		t.Fatalf("custom factory error: %v", err)
	}
	if !called {
		t.Error("caller-supplied factory was not invoked")
	}

	// The default set must not leak into a custom registry.
	if _, err := reg.New(StrategyStatic, Options{}, testPlatform()); err == nil {
		t.Error("custom registry should not know built-in names")
	}
}
