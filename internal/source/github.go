package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// defaultGitHubAPI is the public API endpoint; tests override it through the
// api_url option.
const defaultGitHubAPI = "https://api.github.com"

// GitHubRelease probes the releases API for the newest release and downloads
// the asset whose name matches a platform-expanded pattern. Optional
// checksums and signature assets from the same release verify the artifact.
type GitHubRelease struct {
	repo       string
	assetRe    *regexp.Regexp
	checksumRe *regexp.Regexp
	sigRe      *regexp.Regexp
	keyring    string
	scheme     version.Scheme
	token      string
	apiBase    string
	client     *http.Client
}

type ghAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type ghRelease struct {
	TagName string    `json:"tag_name"`
	Assets  []ghAsset `json:"assets"`
}

// NewGitHubRelease builds the strategy from recipe options. repo is
// "owner/name"; asset_pattern matches asset names after platform expansion.
// An auth token comes from the token option or GITHUB_TOKEN.
func NewGitHubRelease(opts Options, plat *platform.Info) (*GitHubRelease, error) {
	if err := opts.RejectUnknown(StrategyGitHubRelease,
		"repo", "asset_pattern", "checksum_asset", "signature_asset", optKeyring,
		"scheme", "token", "api_url"); err != nil {
		return nil, err
	}

	repo, err := opts.Required(StrategyGitHubRelease, "repo")
	if err != nil {
		return nil, err
	}
	if ok, _ := regexp.MatchString(`^[^/\s]+/[^/\s]+$`, repo); !ok {
		return nil, &ConfigurationError{
			Component: StrategyGitHubRelease, Option: "repo", Reason: `must be "owner/name"`,
		}
	}

	assetPat, err := opts.Required(StrategyGitHubRelease, "asset_pattern")
	if err != nil {
		return nil, err
	}
	assetRe, err := regexp.Compile(platform.Expand(assetPat, plat))
	if err != nil {
		return nil, &ConfigurationError{
			Component: StrategyGitHubRelease, Option: "asset_pattern", Reason: err.Error(),
		}
	}

	var checksumRe, sigRe *regexp.Regexp
	if pat := opts.Get("checksum_asset", ""); pat != "" {
		checksumRe, err = regexp.Compile(pat)
		if err != nil {
			return nil, &ConfigurationError{
				Component: StrategyGitHubRelease, Option: "checksum_asset", Reason: err.Error(),
			}
		}
	}
	if pat := opts.Get("signature_asset", ""); pat != "" {
		sigRe, err = regexp.Compile(pat)
		if err != nil {
			return nil, &ConfigurationError{
				Component: StrategyGitHubRelease, Option: "signature_asset", Reason: err.Error(),
			}
		}
	}

	keyring := opts.Get(optKeyring, "")
	if sigRe != nil && keyring == "" {
		return nil, &ConfigurationError{
			Component: StrategyGitHubRelease, Option: optKeyring, Reason: "required when signature_asset is set",
		}
	}
	if keyring != "" {
		if sigRe == nil {
			return nil, &ConfigurationError{
				Component: StrategyGitHubRelease, Option: "signature_asset", Reason: "required when keyring is set",
			}
		}
		if _, err := os.Stat(keyring); err != nil {
			return nil, &ConfigurationError{
				Component: StrategyGitHubRelease, Option: optKeyring, Reason: fmt.Sprintf("keyring not readable: %v", err),
			}
		}
	}

	scheme, err := opts.scheme(StrategyGitHubRelease, version.SchemeSemantic)
	if err != nil {
		return nil, err
	}

	return &GitHubRelease{
		repo:       repo,
		assetRe:    assetRe,
		checksumRe: checksumRe,
		sigRe:      sigRe,
		keyring:    keyring,
		scheme:     scheme,
		token:      opts.Get("token", os.Getenv("GITHUB_TOKEN")),
		apiBase:    opts.Get("api_url", defaultGitHubAPI),
		client:     newMetaClient(),
	}, nil
}

func (s *GitHubRelease) Name() string { return StrategyGitHubRelease }

func (s *GitHubRelease) Capabilities() Capability { return CapProbeVersion | CapDownloadFile }

// Probe reads the latest release tag without touching any asset.
func (s *GitHubRelease) Probe(ctx context.Context) (version.Record, error) {
	rel, err := s.release(ctx, "/releases/latest")
	if err != nil {
		return version.Record{}, err
	}
	return version.New(rel.TagName, s.scheme, "probe:"+StrategyGitHubRelease)
}

// release fetches and decodes one release document from the API.
func (s *GitHubRelease) release(ctx context.Context, pathSuffix string) (*ghRelease, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}

	u := s.apiBase + "/repos/" + s.repo + pathSuffix
	body, err := metadataGet(ctx, s.client, u, maxMetadataBytes, header)
	if err != nil {
		return nil, err
	}

	var rel ghRelease
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("decode release from %s: %w", u, err)
	}
	if rel.TagName == "" {
		return nil, fmt.Errorf("release from %s has no tag", u)
	}
	return &rel, nil
}

// findAsset returns the first asset matching re, in release order.
func findAsset(rel *ghRelease, re *regexp.Regexp) (ghAsset, bool) {
	for _, a := range rel.Assets {
		if re.MatchString(a.Name) {
			return a, true
		}
	}
	return ghAsset{}, false
}

func (s *GitHubRelease) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	var (
		rel *ghRelease
		ver version.Record
		err error
	)
	if req.Known != nil {
		// Repair: look the known tag up directly instead of re-probing.
		rel, err = s.release(ctx, "/releases/tags/"+url.PathEscape(req.Known.Raw))
		if err != nil {
			return nil, nil, err
		}
		ver = *req.Known
	} else {
		rel, err = s.release(ctx, "/releases/latest")
		if err != nil {
			return nil, nil, err
		}
		ver, err = version.New(rel.TagName, s.scheme, "probe:"+StrategyGitHubRelease)
		if err != nil {
			return nil, nil, err
		}
	}

	asset, ok := findAsset(rel, s.assetRe)
	if !ok {
		return nil, nil, fmt.Errorf("release %s of %s: no asset matches %q",
			rel.TagName, s.repo, s.assetRe.String())
	}

	dest := filepath.Join(req.DestDir, asset.Name)
	if req.DestPath != "" {
		dest = req.DestPath
	}

	expected := ""
	if s.checksumRe != nil {
		expected, err = s.expectedHashFromAsset(ctx, engine, req, rel, asset.Name)
		if err != nil {
			return nil, nil, err
		}
	}

	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           asset.BrowserDownloadURL,
		Destination:   dest,
		Validators:    req.Validators,
		ExpectedHash:  expected,
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return nil, nil, err
	}

	if s.sigRe != nil && res.Status == fetch.StatusFetched {
		if err := s.verifySignatureAsset(ctx, engine, req, rel, res.LocalPath); err != nil {
			return nil, nil, err
		}
	}

	return &ver, res, nil
}

// expectedHashFromAsset downloads the release's checksums asset and resolves
// the artifact's expected digest before the artifact transfer starts.
func (s *GitHubRelease) expectedHashFromAsset(ctx context.Context, engine *fetch.Engine, req ArtifactRequest, rel *ghRelease, artifactName string) (string, error) {
	manifest, ok := findAsset(rel, s.checksumRe)
	if !ok {
		return "", fmt.Errorf("release %s of %s: no checksums asset matches %q",
			rel.TagName, s.repo, s.checksumRe.String())
	}

	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           manifest.BrowserDownloadURL,
		Destination:   filepath.Join(req.DestDir, manifest.Name),
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return "", fmt.Errorf("fetch checksums asset: %w", err)
	}

	digest, err := verify.FindChecksum(res.LocalPath, artifactName)
	if err != nil {
		return "", fmt.Errorf("resolve expected hash: %w", err)
	}
	return digest, nil
}

// verifySignatureAsset downloads the release's signature asset and verifies
// the artifact, removing it when the check fails.
func (s *GitHubRelease) verifySignatureAsset(ctx context.Context, engine *fetch.Engine, req ArtifactRequest, rel *ghRelease, artifactPath string) error {
	sig, ok := findAsset(rel, s.sigRe)
	if !ok {
		return fmt.Errorf("release %s of %s: no signature asset matches %q",
			rel.TagName, s.repo, s.sigRe.String())
	}

	sigRes, err := engine.Fetch(ctx, fetch.Request{
		URL:           sig.BrowserDownloadURL,
		Destination:   filepath.Join(req.DestDir, sig.Name),
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return fmt.Errorf("fetch signature asset: %w", err)
	}

	keyring, err := verify.LoadKeyring(s.keyring)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	if err := verify.DetachedSignature(artifactPath, sigRes.LocalPath, keyring); err != nil {
		os.Remove(artifactPath)
		return fmt.Errorf("artifact %s: %w", filepath.Base(artifactPath), err)
	}
	return nil
}
