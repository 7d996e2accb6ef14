// Package verify provides artifact verification: SHA-256 digests, checksum
// manifest lookup, and GPG detached-signature checks.
package verify

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// FileSHA256 computes the hex-encoded SHA-256 digest of a file.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// FindChecksum finds the digest for a specific filename in a checksum
// manifest. Lines follow the coreutils format: "abc123def456  filename.pkg".
func FindChecksum(checksumPath, filename string) (string, error) {
	file, err := os.Open(checksumPath)
	if err != nil {
		return "", fmt.Errorf("open checksum file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}

		// Exact match first, then basename for manifests that list paths.
		name := strings.TrimPrefix(parts[1], "*") // binary-mode marker
		if name == filename || filepath.Base(name) == filename {
			return parts[0], nil
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum file: %w", err)
	}

	return "", fmt.Errorf("checksum not found for %s", filename)
}

// DigestsEqual compares two hex digests case-insensitively.
func DigestsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// LoadKeyring reads a GPG public keyring, armored or binary.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer file.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(file)
	if err != nil {
		// Try reading as non-armored keyring
		if _, serr := file.Seek(0, io.SeekStart); serr != nil {
			return nil, fmt.Errorf("rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(file)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}

	return keyring, nil
}

// DetachedSignature verifies a GPG detached signature over an artifact,
// trying armored first and falling back to binary signatures.
func DetachedSignature(artifactPath, signaturePath string, keyring openpgp.EntityList) error {
	artifact, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer artifact.Close()

	sig, err := os.Open(signaturePath)
	if err != nil {
		return fmt.Errorf("open signature: %w", err)
	}
	defer sig.Close()

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, artifact, sig, nil)
	if err != nil {
		// Try non-armored signature
		if _, serr := artifact.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind artifact: %w", serr)
		}
		if _, serr := sig.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("rewind signature: %w", serr)
		}
		_, err = openpgp.CheckDetachedSignature(keyring, artifact, sig, nil)
	}
	if err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}

	return nil
}
