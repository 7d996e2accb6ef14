// Package extract derives a version from a downloaded artifact. Strategies
// without a version probe hand the orchestrator a file and nothing else; an
// Extractor turns that file into a comparable version record.
//
// The built-in content-regex method scans the file's bytes for a version
// string. Richer readers (installer product-version fields and the like) are
// injected by the caller through the same Extractor interface and Registry.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/source"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// MethodContentRegex scans file content for a version string.
const MethodContentRegex = "content-regex"

// maxScanBytes bounds how much of an artifact the content scanner reads.
// Version strings live in headers and metadata blocks, not megabytes in.
const maxScanBytes = 8 << 20

// Extractor derives a version record from a local file.
type Extractor interface {
	// Name returns the extraction method this extractor implements.
	Name() string
	// Extract reads the file at path and returns the version it carries.
	// Failures are reported as *ExtractionError.
	Extract(ctx context.Context, path string) (version.Record, error)
}

// ExtractionError means a downloaded file yielded no usable version. The
// file itself may still be intact and installable, so callers keep it; only
// the version bookkeeping is abandoned.
type ExtractionError struct {
	Method string
	Path   string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract version (%s) from %s: %v", e.Method, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ContentExtractor implements content-regex: a bounded scan of the file's
// bytes with a configured pattern whose first capture group is the version.
type ContentExtractor struct {
	re     *regexp.Regexp
	scheme version.Scheme
}

// NewContentExtractor builds the scanner from recipe options: pattern
// (required, first capture group is the version) and scheme (defaults to
// numeric-triplet, the common shape for embedded product versions).
func NewContentExtractor(opts source.Options) (*ContentExtractor, error) {
	if err := opts.RejectUnknown(MethodContentRegex, "pattern", "scheme"); err != nil {
		return nil, err
	}
	pat, err := opts.Required(MethodContentRegex, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return nil, &source.ConfigurationError{
			Component: MethodContentRegex, Option: "pattern", Reason: err.Error(),
		}
	}
	if re.NumSubexp() < 1 {
		return nil, &source.ConfigurationError{
			Component: MethodContentRegex, Option: "pattern", Reason: "needs a capture group",
		}
	}

	scheme := version.SchemeNumericTriplet
	if raw := opts.Get("scheme", ""); raw != "" {
		scheme, err = version.ParseScheme(raw)
		if err != nil {
			return nil, &source.ConfigurationError{
				Component: MethodContentRegex, Option: "scheme", Reason: err.Error(),
			}
		}
	}

	return &ContentExtractor{re: re, scheme: scheme}, nil
}

func (e *ContentExtractor) Name() string { return MethodContentRegex }

func (e *ContentExtractor) Extract(ctx context.Context, path string) (version.Record, error) {
	if err := ctx.Err(); err != nil {
		return version.Record{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return version.Record{}, &ExtractionError{Method: MethodContentRegex, Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxScanBytes))
	if err != nil {
		return version.Record{}, &ExtractionError{Method: MethodContentRegex, Path: path, Err: err}
	}

	m := e.re.FindSubmatch(data)
	if m == nil {
		return version.Record{}, &ExtractionError{
			Method: MethodContentRegex, Path: path,
			Err: fmt.Errorf("pattern %q not found in first %d bytes", e.re.String(), maxScanBytes),
		}
	}

	rec, err := version.New(string(m[1]), e.scheme, "extract:"+MethodContentRegex)
	if err != nil {
		return version.Record{}, &ExtractionError{Method: MethodContentRegex, Path: path, Err: err}
	}
	return rec, nil
}

// Factory builds an extractor from recipe options.
type Factory func(source.Options) (Extractor, error)

// Registry maps extraction method names to factories. Like the strategy
// registry it is caller-assembled: there is no global registration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry from the given factories.
func NewRegistry(factories map[string]Factory) *Registry {
	m := make(map[string]Factory, len(factories))
	for name, f := range factories {
		m[name] = f
	}
	return &Registry{factories: m}
}

// DefaultFactories returns the built-in extraction methods.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		MethodContentRegex: func(opts source.Options) (Extractor, error) {
			return NewContentExtractor(opts)
		},
	}
}

// Names returns the registered method names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named extractor, validating its options.
func (r *Registry) New(method string, opts source.Options) (Extractor, error) {
	f, ok := r.factories[method]
	if !ok {
		return nil, &source.ConfigurationError{
			Component: "extract", Option: "method",
			Reason: fmt.Sprintf("unknown method %q (known: %s)", method, strings.Join(r.Names(), ", ")),
		}
	}
	return f(opts)
}
