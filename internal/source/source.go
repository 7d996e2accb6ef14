// Package source implements the download strategies that discover and fetch
// application artifacts: fixed URLs, redirect-pattern URLs, GitHub releases,
// JSON index APIs, page scraping, and S3 bucket listings.
//
// A Strategy advertises what it can do through capability tags. Version-first
// strategies (CapProbeVersion) learn the latest version with a cheap metadata
// request before any transfer; file-first strategies only download, leaving
// version discovery to post-download extraction. All artifact bytes flow
// through fetch.Engine so retry, atomicity, and hash guarantees are uniform
// regardless of strategy.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// Capability tags what a strategy can do. The orchestrator branches on these
// instead of probing behavior at runtime.
type Capability uint8

const (
	// CapProbeVersion marks strategies that can report the latest version
	// with a cheap metadata request, no artifact transfer.
	CapProbeVersion Capability = 1 << iota
	// CapDownloadFile marks strategies that resolve and download the
	// artifact itself.
	CapDownloadFile
)

// Has reports whether all capabilities in want are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapProbeVersion) {
		parts = append(parts, "probes_version")
	}
	if c.Has(CapDownloadFile) {
		parts = append(parts, "downloads_file")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ArtifactRequest carries everything a strategy needs to resolve and fetch
// one application's artifact.
type ArtifactRequest struct {
	// ApplicationID scopes temp files and log lines.
	ApplicationID string
	// DestDir is the directory the artifact (and any checksum or signature
	// sidecar files) land in.
	DestDir string
	// DestPath, when set, pins the exact destination file instead of
	// deriving a name from the source. Repairs set it to the recorded path.
	DestPath string
	// Validators are the freshness tokens from the previous successful
	// fetch, forwarded to the engine for conditional requests. Only set
	// when the recorded artifact was re-verified intact on disk.
	Validators map[string]string
	// Known pins the version to re-fetch during a repair. The strategy must
	// not probe again and fetches exactly this version; if the source has
	// already moved on, it reports what it actually fetched.
	Known *version.Record
}

// Strategy is one way of locating and retrieving an application's artifact.
type Strategy interface {
	// Name identifies the strategy in logs and provenance labels.
	Name() string
	// Capabilities reports the strategy's capability tags.
	Capabilities() Capability
	// Probe returns the latest available version without downloading
	// anything. Only valid when Capabilities includes CapProbeVersion.
	Probe(ctx context.Context) (version.Record, error)
	// ResolveAndFetch downloads the artifact through the engine, probing
	// first when it needs a version and req.Known is unset. The returned
	// version is nil for file-first strategies (the caller extracts it from
	// the artifact).
	ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error)
}

// ConfigurationError reports malformed strategy or extractor configuration.
// It fails the application's check immediately; nothing is retried.
type ConfigurationError struct {
	Component string // strategy or extractor name
	Option    string // offending option, empty when the whole config is bad
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Option != "" {
		return fmt.Sprintf("%s: option %q: %s", e.Component, e.Option, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Reason)
}

// Options is the flat option map a recipe supplies for one strategy or
// extractor. Validation happens at construction, not at check time.
type Options map[string]string

// Required returns the trimmed value for key or a ConfigurationError.
func (o Options) Required(component, key string) (string, error) {
	v := strings.TrimSpace(o[key])
	if v == "" {
		return "", &ConfigurationError{Component: component, Option: key, Reason: "required"}
	}
	return v, nil
}

// Get returns the trimmed value for key, or def when unset.
func (o Options) Get(key, def string) string {
	v := strings.TrimSpace(o[key])
	if v == "" {
		return def
	}
	return v
}

// scheme parses the optional "scheme" option, defaulting to def.
func (o Options) scheme(component string, def version.Scheme) (version.Scheme, error) {
	raw := strings.TrimSpace(o["scheme"])
	if raw == "" {
		return def, nil
	}
	s, err := version.ParseScheme(raw)
	if err != nil {
		return "", &ConfigurationError{Component: component, Option: "scheme", Reason: err.Error()}
	}
	return s, nil
}

// RejectUnknown fails on option keys the component does not understand, so a
// typo'd recipe fails fast instead of being silently ignored.
func (o Options) RejectUnknown(component string, allowed ...string) error {
	allowedSet := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = true
	}
	var unknown []string
	for k := range o {
		if !allowedSet[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &ConfigurationError{Component: component, Option: unknown[0], Reason: "unknown option"}
}

// expandVersionToken substitutes {version} in a URL template. Templates with
// the token are rejected when no version is available to substitute.
func expandVersionToken(component, option, template, raw string) (string, error) {
	if !strings.Contains(template, "{version}") {
		return template, nil
	}
	if raw == "" {
		return "", &ConfigurationError{
			Component: component,
			Option:    option,
			Reason:    "{version} token requires a version-probing strategy",
		}
	}
	return strings.ReplaceAll(template, "{version}", raw), nil
}

// compilePattern compiles a regexp option that must capture the version (or
// another value) in its first group.
func compilePattern(component, option, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ConfigurationError{Component: component, Option: option, Reason: err.Error()}
	}
	if re.NumSubexp() < 1 {
		return nil, &ConfigurationError{Component: component, Option: option, Reason: "needs a capture group"}
	}
	return re, nil
}

// metaTimeout bounds a single metadata request (probe, index, page).
const metaTimeout = 30 * time.Second

// maxMetadataBytes bounds how much of a metadata response is read.
const maxMetadataBytes = 4 << 20

func newMetaClient() *http.Client {
	return &http.Client{Timeout: metaTimeout}
}

// metadataGet performs a bounded single-attempt GET for small metadata
// documents. Artifact transfers never use this; they go through fetch.Engine
// for retries and atomicity.
func metadataGet(ctx context.Context, client *http.Client, url string, limit int64, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", fetch.DefaultUserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &fetch.TransferError{
			URL:      url,
			Status:   resp.StatusCode,
			Attempts: 1,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// resolveDestination decides where the artifact lands: the pinned repair
// path, the recipe's filename option, or the base name of the source URL.
func resolveDestination(component string, req ArtifactRequest, optionFilename, rawURL string) (dest, filename string, err error) {
	if req.DestPath != "" {
		return req.DestPath, filepath.Base(req.DestPath), nil
	}
	filename = optionFilename
	if filename == "" {
		u, perr := url.Parse(rawURL)
		if perr != nil {
			return "", "", &ConfigurationError{Component: component, Option: "url", Reason: perr.Error()}
		}
		filename = path.Base(u.Path)
		if filename == "" || filename == "." || filename == "/" {
			return "", "", &ConfigurationError{
				Component: component,
				Option:    "filename",
				Reason:    fmt.Sprintf("cannot derive a filename from %q; set filename explicitly", rawURL),
			}
		}
	}
	return filepath.Join(req.DestDir, filename), filename, nil
}
