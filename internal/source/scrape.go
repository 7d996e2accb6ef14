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

// maxPageBytes bounds how much of a scraped page is read. Version strings
// live in the first screenful of any sane download page.
const maxPageBytes = 1 << 20

// PageScrape extracts the version from a vendor download page with a regexp
// and substitutes it into a URL template. The last resort for vendors with
// no feed, no API, and no predictable redirect.
type PageScrape struct {
	pageURL     string
	re          *regexp.Regexp
	urlTemplate string
	scheme      version.Scheme
	filename    string
	verifier    artifactVerifier
	client      *http.Client
}

// NewPageScrape builds the strategy from recipe options. pattern's first
// capture group is the version; url is the artifact template.
func NewPageScrape(opts Options, plat *platform.Info) (*PageScrape, error) {
	if err := opts.RejectUnknown(StrategyPageScrape,
		"page_url", "pattern", "url", "scheme", "filename",
		optChecksumURL, optSignatureURL, optKeyring); err != nil {
		return nil, err
	}

	pageURL, err := opts.Required(StrategyPageScrape, "page_url")
	if err != nil {
		return nil, err
	}
	pat, err := opts.Required(StrategyPageScrape, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := compilePattern(StrategyPageScrape, "pattern", pat)
	if err != nil {
		return nil, err
	}
	urlTemplate, err := opts.Required(StrategyPageScrape, "url")
	if err != nil {
		return nil, err
	}
	scheme, err := opts.scheme(StrategyPageScrape, version.SchemeSemantic)
	if err != nil {
		return nil, err
	}
	verifier, err := newArtifactVerifier(StrategyPageScrape, opts, true)
	if err != nil {
		return nil, err
	}

	return &PageScrape{
		pageURL:     platform.Expand(pageURL, plat),
		re:          re,
		urlTemplate: platform.Expand(urlTemplate, plat),
		scheme:      scheme,
		filename:    opts.Get("filename", ""),
		verifier:    verifier,
		client:      newMetaClient(),
	}, nil
}

func (s *PageScrape) Name() string { return StrategyPageScrape }

func (s *PageScrape) Capabilities() Capability { return CapProbeVersion | CapDownloadFile }

// Probe downloads at most maxPageBytes of the page and captures the version.
func (s *PageScrape) Probe(ctx context.Context) (version.Record, error) {
	body, err := metadataGet(ctx, s.client, s.pageURL, maxPageBytes, nil)
	if err != nil {
		return version.Record{}, err
	}

	m := s.re.FindSubmatch(body)
	if m == nil {
		return version.Record{}, fmt.Errorf("scrape %s: pattern %q not found in first %d bytes",
			s.pageURL, s.re.String(), maxPageBytes)
	}

	return version.New(string(m[1]), s.scheme, "probe:"+StrategyPageScrape)
}

func (s *PageScrape) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	var ver version.Record
	if req.Known != nil {
		ver = *req.Known
	} else {
		v, err := s.Probe(ctx)
		if err != nil {
			return nil, nil, err
		}
		ver = v
	}

	artifactURL, err := expandVersionToken(StrategyPageScrape, "url", s.urlTemplate, ver.Raw)
	if err != nil {
		return nil, nil, err
	}

	dest, filename, err := resolveDestination(StrategyPageScrape, req, s.filename, artifactURL)
	if err != nil {
		return nil, nil, err
	}

	expected, err := s.verifier.expectedHash(ctx, engine, req, ver.Raw, filename)
	if err != nil {
		return nil, nil, err
	}

	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           artifactURL,
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
