package source

import (
	"context"
	"fmt"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// Static downloads from a fixed, platform-expandable URL. It is file-first:
// there is no version probe, the version comes from post-download extraction,
// and the unchanged case stays cheap through conditional requests.
type Static struct {
	url      string
	filename string
	verifier artifactVerifier
}

// NewStatic builds the static strategy from recipe options.
func NewStatic(opts Options, plat *platform.Info) (*Static, error) {
	if err := opts.RejectUnknown(StrategyStatic,
		"url", "filename", optChecksumURL, optSignatureURL, optKeyring); err != nil {
		return nil, err
	}

	rawURL, err := opts.Required(StrategyStatic, "url")
	if err != nil {
		return nil, err
	}

	verifier, err := newArtifactVerifier(StrategyStatic, opts, false)
	if err != nil {
		return nil, err
	}

	return &Static{
		url:      platform.Expand(rawURL, plat),
		filename: opts.Get("filename", ""),
		verifier: verifier,
	}, nil
}

func (s *Static) Name() string { return StrategyStatic }

func (s *Static) Capabilities() Capability { return CapDownloadFile }

// Probe is not available: a fixed URL reveals nothing without downloading.
func (s *Static) Probe(ctx context.Context) (version.Record, error) {
	return version.Record{}, fmt.Errorf("%s: no version probe", StrategyStatic)
}

func (s *Static) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	dest, filename, err := resolveDestination(StrategyStatic, req, s.filename, s.url)
	if err != nil {
		return nil, nil, err
	}

	expected, err := s.verifier.expectedHash(ctx, engine, req, "", filename)
	if err != nil {
		return nil, nil, err
	}

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
		if err := s.verifier.verifySignature(ctx, engine, req, "", res.LocalPath); err != nil {
			return nil, nil, err
		}
	}

	return nil, res, nil
}
