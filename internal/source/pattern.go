package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// URLPattern handles vendors that publish a stable entry URL whose redirect
// chain ends at a versioned artifact URL ("/latest" style). The probe issues
// one GET, reads no body, and captures the version from the terminal URL, so
// checking for updates costs a single small request.
type URLPattern struct {
	url      string
	re       *regexp.Regexp
	scheme   version.Scheme
	filename string
	verifier artifactVerifier
	client   *http.Client
}

// NewURLPattern builds the strategy from recipe options. The pattern option
// is a regexp applied to the terminal URL; its first capture group is the
// version.
func NewURLPattern(opts Options, plat *platform.Info) (*URLPattern, error) {
	if err := opts.RejectUnknown(StrategyURLPattern,
		"url", "pattern", "scheme", "filename", optChecksumURL, optSignatureURL, optKeyring); err != nil {
		return nil, err
	}

	rawURL, err := opts.Required(StrategyURLPattern, "url")
	if err != nil {
		return nil, err
	}
	pat, err := opts.Required(StrategyURLPattern, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := compilePattern(StrategyURLPattern, "pattern", pat)
	if err != nil {
		return nil, err
	}
	scheme, err := opts.scheme(StrategyURLPattern, version.SchemeSemantic)
	if err != nil {
		return nil, err
	}
	verifier, err := newArtifactVerifier(StrategyURLPattern, opts, true)
	if err != nil {
		return nil, err
	}

	return &URLPattern{
		url:      platform.Expand(rawURL, plat),
		re:       re,
		scheme:   scheme,
		filename: opts.Get("filename", ""),
		verifier: verifier,
		client:   newMetaClient(),
	}, nil
}

func (s *URLPattern) Name() string { return StrategyURLPattern }

func (s *URLPattern) Capabilities() Capability { return CapProbeVersion | CapDownloadFile }

// Probe follows the redirect chain and extracts the version from where it
// lands.
func (s *URLPattern) Probe(ctx context.Context) (version.Record, error) {
	rec, _, err := s.resolve(ctx)
	return rec, err
}

// resolve issues the probe request and returns the captured version along
// with the terminal URL the redirects landed on.
func (s *URLPattern) resolve(ctx context.Context) (version.Record, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return version.Record{}, "", fmt.Errorf("build probe request: %w", err)
	}
	httpReq.Header.Set("User-Agent", fetch.DefaultUserAgent)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return version.Record{}, "", fmt.Errorf("probe %s: %w", s.url, err)
	}
	// The terminal URL is all the probe needs.
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return version.Record{}, "", &fetch.TransferError{
			URL:      s.url,
			Status:   resp.StatusCode,
			Attempts: 1,
			Err:      fmt.Errorf("probe got status %s", resp.Status),
		}
	}

	terminal := resp.Request.URL.String()
	m := s.re.FindStringSubmatch(terminal)
	if m == nil {
		return version.Record{}, "", fmt.Errorf("probe %s: pattern %q did not match terminal url %s",
			s.url, s.re.String(), terminal)
	}

	rec, err := version.New(m[1], s.scheme, "probe:"+StrategyURLPattern)
	if err != nil {
		return version.Record{}, "", fmt.Errorf("probe %s: %w", s.url, err)
	}
	return rec, terminal, nil
}

func (s *URLPattern) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	var (
		ver      version.Record
		terminal string
	)
	if req.Known != nil {
		// Repair: the caller probed moments ago, fetch without re-probing.
		ver = *req.Known
	} else {
		v, t, err := s.resolve(ctx)
		if err != nil {
			return nil, nil, err
		}
		ver, terminal = v, t
	}

	// Prefer naming the file after where the redirects actually land.
	nameSource := s.url
	if terminal != "" {
		nameSource = terminal
	}
	dest, filename, err := resolveDestination(StrategyURLPattern, req, s.filename, nameSource)
	if err != nil {
		return nil, nil, err
	}

	expected, err := s.verifier.expectedHash(ctx, engine, req, ver.Raw, filename)
	if err != nil {
		return nil, nil, err
	}

	// Fetch through the entry URL; the engine follows the same redirects and
	// reports validators from the terminal response.
	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           s.url,
		Destination:   dest,
		Validators:    req.Validators,
		ExpectedHash:  expected,
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return nil, nil, err
	}

	if res.Status == fetch.StatusFetched {
		if err := s.verifier.verifySignature(ctx, engine, req, ver.Raw, res.LocalPath); err != nil {
			return nil, nil, err
		}
	}

	return &ver, res, nil
}
