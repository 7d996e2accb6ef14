package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
)

// Built-in strategy names.
const (
	StrategyStatic        = "static"
	StrategyURLPattern    = "url-pattern"
	StrategyGitHubRelease = "github-release"
	StrategyJSONIndex     = "json-index"
	StrategyPageScrape    = "page-scrape"
	StrategyS3Bucket      = "s3-bucket"
)

// Factory builds a strategy from recipe options for the current platform.
type Factory func(opts Options, plat *platform.Info) (Strategy, error)

// Registry resolves strategy names to factories. The set is supplied by the
// caller at construction; there is no global registration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry from an explicit factory map.
func NewRegistry(factories map[string]Factory) *Registry {
	m := make(map[string]Factory, len(factories))
	for name, f := range factories {
		m[name] = f
	}
	return &Registry{factories: m}
}

// Names lists the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named strategy, validating its options immediately.
func (r *Registry) New(name string, opts Options, plat *platform.Info) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &ConfigurationError{
			Component: name,
			Reason:    fmt.Sprintf("unknown strategy (known: %s)", strings.Join(r.Names(), ", ")),
		}
	}
	return f(opts, plat)
}

// DefaultFactories returns the built-in strategy set, ready for NewRegistry.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		StrategyStatic: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewStatic(opts, plat)
		},
		StrategyURLPattern: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewURLPattern(opts, plat)
		},
		StrategyGitHubRelease: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewGitHubRelease(opts, plat)
		},
		StrategyJSONIndex: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewJSONIndex(opts, plat)
		},
		StrategyPageScrape: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewPageScrape(opts, plat)
		},
		StrategyS3Bucket: func(opts Options, plat *platform.Info) (Strategy, error) {
			return NewS3Bucket(opts, plat)
		},
	}
}
