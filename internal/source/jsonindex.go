package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// JSONIndex probes a JSON metadata endpoint and walks dot-paths for the
// version and the artifact URL. Fits vendors that publish an update feed
// like {"latest": {"version": "1.2.3", "download": "https://..."}}.
type JSONIndex struct {
	indexURL    string
	versionPath string
	urlPath     string
	urlTemplate string
	scheme      version.Scheme
	filename    string
	verifier    artifactVerifier
	client      *http.Client
}

// NewJSONIndex builds the strategy from recipe options. Exactly one of
// url_path (dot-path into the index document) and url ({version} template)
// must be set.
func NewJSONIndex(opts Options, plat *platform.Info) (*JSONIndex, error) {
	if err := opts.RejectUnknown(StrategyJSONIndex,
		"index_url", "version_path", "url_path", "url", "scheme", "filename",
		optChecksumURL, optSignatureURL, optKeyring); err != nil {
		return nil, err
	}

	indexURL, err := opts.Required(StrategyJSONIndex, "index_url")
	if err != nil {
		return nil, err
	}
	versionPath, err := opts.Required(StrategyJSONIndex, "version_path")
	if err != nil {
		return nil, err
	}

	urlPath := opts.Get("url_path", "")
	urlTemplate := opts.Get("url", "")
	switch {
	case urlPath != "" && urlTemplate != "":
		return nil, &ConfigurationError{
			Component: StrategyJSONIndex, Option: "url", Reason: "mutually exclusive with url_path",
		}
	case urlPath == "" && urlTemplate == "":
		return nil, &ConfigurationError{
			Component: StrategyJSONIndex, Option: "url_path", Reason: "one of url_path or url is required",
		}
	}

	scheme, err := opts.scheme(StrategyJSONIndex, version.SchemeSemantic)
	if err != nil {
		return nil, err
	}
	verifier, err := newArtifactVerifier(StrategyJSONIndex, opts, true)
	if err != nil {
		return nil, err
	}

	return &JSONIndex{
		indexURL:    platform.Expand(indexURL, plat),
		versionPath: versionPath,
		urlPath:     urlPath,
		urlTemplate: platform.Expand(urlTemplate, plat),
		scheme:      scheme,
		filename:    opts.Get("filename", ""),
		verifier:    verifier,
		client:      newMetaClient(),
	}, nil
}

func (s *JSONIndex) Name() string { return StrategyJSONIndex }

func (s *JSONIndex) Capabilities() Capability { return CapProbeVersion | CapDownloadFile }

// index fetches and decodes the metadata document.
func (s *JSONIndex) index(ctx context.Context) (any, error) {
	body, err := metadataGet(ctx, s.client, s.indexURL, maxMetadataBytes, nil)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", s.indexURL, err)
	}
	return doc, nil
}

// versionFrom extracts the version record at versionPath.
func (s *JSONIndex) versionFrom(doc any) (version.Record, error) {
	raw, err := lookupPath(doc, s.versionPath)
	if err != nil {
		return version.Record{}, fmt.Errorf("index %s: version_path: %w", s.indexURL, err)
	}
	return version.New(raw, s.scheme, "probe:"+StrategyJSONIndex)
}

func (s *JSONIndex) Probe(ctx context.Context) (version.Record, error) {
	doc, err := s.index(ctx)
	if err != nil {
		return version.Record{}, err
	}
	return s.versionFrom(doc)
}

func (s *JSONIndex) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	var (
		ver         version.Record
		artifactURL string
	)

	switch {
	case req.Known != nil && s.urlTemplate != "":
		// Repair with a URL template needs no metadata round trip.
		ver = *req.Known
		u, err := expandVersionToken(StrategyJSONIndex, "url", s.urlTemplate, ver.Raw)
		if err != nil {
			return nil, nil, err
		}
		artifactURL = u

	default:
		// Fresh read of the index. During a url_path repair this may reveal
		// the source moved past the known version; the fetched version is
		// reported back so the caller records what is actually on disk.
		doc, err := s.index(ctx)
		if err != nil {
			return nil, nil, err
		}
		ver, err = s.versionFrom(doc)
		if err != nil {
			return nil, nil, err
		}

		if s.urlPath != "" {
			artifactURL, err = lookupPath(doc, s.urlPath)
			if err != nil {
				return nil, nil, fmt.Errorf("index %s: url_path: %w", s.indexURL, err)
			}
		} else {
			artifactURL, err = expandVersionToken(StrategyJSONIndex, "url", s.urlTemplate, ver.Raw)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	dest, filename, err := resolveDestination(StrategyJSONIndex, req, s.filename, artifactURL)
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

// lookupPath walks a dot-separated path through decoded JSON. Numeric
// segments index arrays. The terminal value must be a string or number.
func lookupPath(doc any, dotPath string) (string, error) {
	cur := doc
	for _, seg := range strings.Split(dotPath, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return "", fmt.Errorf("key %q not found", seg)
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return "", fmt.Errorf("segment %q indexes an array, want a number", seg)
			}
			if idx < 0 || idx >= len(node) {
				return "", fmt.Errorf("index %d out of range (array length %d)", idx, len(node))
			}
			cur = node[idx]
		default:
			return "", fmt.Errorf("segment %q: cannot descend into %T", seg, cur)
		}
	}

	switch v := cur.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("path %q: value is empty", dotPath)
		}
		return v, nil
	case float64:
		// JSON numbers decode as float64; render integers without a decimal
		// point so "42" stays "42".
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("path %q: value is %T, want string or number", dotPath, cur)
	}
}
