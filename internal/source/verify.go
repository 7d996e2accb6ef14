package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
)

// Verification option keys shared by URL-based strategies.
const (
	optChecksumURL  = "checksum_url"
	optSignatureURL = "signature_url"
	optKeyring      = "keyring"
)

// artifactVerifier holds the optional checksum-manifest and detached-signature
// settings a strategy was configured with. The zero value verifies nothing.
type artifactVerifier struct {
	component    string
	checksumURL  string
	signatureURL string
	keyringPath  string
}

// newArtifactVerifier validates the verification options. Strategies without
// a version probe pass allowVersionToken=false so a {version} token in these
// URLs fails at construction instead of at check time.
func newArtifactVerifier(component string, opts Options, allowVersionToken bool) (artifactVerifier, error) {
	av := artifactVerifier{
		component:    component,
		checksumURL:  opts.Get(optChecksumURL, ""),
		signatureURL: opts.Get(optSignatureURL, ""),
		keyringPath:  opts.Get(optKeyring, ""),
	}

	if av.signatureURL != "" && av.keyringPath == "" {
		return artifactVerifier{}, &ConfigurationError{
			Component: component, Option: optKeyring, Reason: "required when signature_url is set",
		}
	}
	if av.keyringPath != "" && av.signatureURL == "" {
		return artifactVerifier{}, &ConfigurationError{
			Component: component, Option: optSignatureURL, Reason: "required when keyring is set",
		}
	}
	if av.keyringPath != "" {
		if _, err := os.Stat(av.keyringPath); err != nil {
			return artifactVerifier{}, &ConfigurationError{
				Component: component, Option: optKeyring, Reason: fmt.Sprintf("keyring not readable: %v", err),
			}
		}
	}

	if !allowVersionToken {
		if strings.Contains(av.checksumURL, "{version}") {
			return artifactVerifier{}, &ConfigurationError{
				Component: component, Option: optChecksumURL,
				Reason: "{version} token requires a version-probing strategy",
			}
		}
		if strings.Contains(av.signatureURL, "{version}") {
			return artifactVerifier{}, &ConfigurationError{
				Component: component, Option: optSignatureURL,
				Reason: "{version} token requires a version-probing strategy",
			}
		}
	}

	return av, nil
}

// expectedHash resolves the artifact's expected SHA-256 before the transfer:
// the checksum manifest is fetched through the engine (kept as a sidecar
// file) and searched for filename's entry. Returns "" when no manifest is
// configured, so the engine skips digest enforcement.
func (av artifactVerifier) expectedHash(ctx context.Context, engine *fetch.Engine, req ArtifactRequest, rawVersion, filename string) (string, error) {
	if av.checksumURL == "" {
		return "", nil
	}

	manifestURL, err := expandVersionToken(av.component, optChecksumURL, av.checksumURL, rawVersion)
	if err != nil {
		return "", err
	}

	dest, err := sidecarPath(req.DestDir, manifestURL, filename, filename+".sha256")
	if err != nil {
		return "", &ConfigurationError{Component: av.component, Option: optChecksumURL, Reason: err.Error()}
	}

	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           manifestURL,
		Destination:   dest,
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return "", fmt.Errorf("fetch checksum manifest: %w", err)
	}

	digest, err := verify.FindChecksum(res.LocalPath, filename)
	if err != nil {
		return "", fmt.Errorf("resolve expected hash: %w", err)
	}
	return digest, nil
}

// verifySignature fetches the detached signature sidecar and checks it
// against the downloaded artifact. A failed check removes the artifact:
// untrusted bytes never stay at the recorded path.
func (av artifactVerifier) verifySignature(ctx context.Context, engine *fetch.Engine, req ArtifactRequest, rawVersion, artifactPath string) error {
	if av.signatureURL == "" {
		return nil
	}

	sigURL, err := expandVersionToken(av.component, optSignatureURL, av.signatureURL, rawVersion)
	if err != nil {
		return err
	}

	sigPath, err := sidecarPath(req.DestDir, sigURL, filepath.Base(artifactPath), filepath.Base(artifactPath)+".sig")
	if err != nil {
		return &ConfigurationError{Component: av.component, Option: optSignatureURL, Reason: err.Error()}
	}

	if _, err := engine.Fetch(ctx, fetch.Request{
		URL:           sigURL,
		Destination:   sigPath,
		ApplicationID: req.ApplicationID,
	}); err != nil {
		return fmt.Errorf("fetch signature: %w", err)
	}

	keyring, err := verify.LoadKeyring(av.keyringPath)
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}

	if err := verify.DetachedSignature(artifactPath, sigPath, keyring); err != nil {
		os.Remove(artifactPath)
		return fmt.Errorf("artifact %s: %w", filepath.Base(artifactPath), err)
	}
	return nil
}

// sidecarPath derives the local path for a metadata file stored next to the
// artifact, preferring the URL's own base name but never colliding with the
// artifact itself.
func sidecarPath(destDir, rawURL, avoid, fallback string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %v", rawURL, err)
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" || base == avoid {
		base = fallback
	}
	return filepath.Join(destDir, base), nil
}
