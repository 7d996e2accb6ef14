package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// presignExpiry is how long a presigned artifact URL stays valid. It only
// needs to outlive the transfer's retry loop.
const presignExpiry = time.Hour

// S3Bucket lists an S3-compatible bucket prefix, extracts versions from
// object keys with a regexp, and downloads the newest object. The transfer
// still flows through the engine via a presigned (or public) URL so the
// atomicity and retry guarantees match every other strategy.
type S3Bucket struct {
	client    *minio.Client
	endpoint  string
	bucket    string
	prefix    string
	keyRe     *regexp.Regexp
	scheme    version.Scheme
	filename  string
	secure    bool
	anonymous bool
}

// NewS3Bucket builds the strategy from recipe options. key_pattern's first
// capture group is the version embedded in the object key. Without
// access_key/secret_key the bucket must allow anonymous reads.
func NewS3Bucket(opts Options, plat *platform.Info) (*S3Bucket, error) {
	if err := opts.RejectUnknown(StrategyS3Bucket,
		"endpoint", "bucket", "prefix", "key_pattern", "region",
		"access_key", "secret_key", "use_ssl", "scheme", "filename"); err != nil {
		return nil, err
	}

	endpoint, err := opts.Required(StrategyS3Bucket, "endpoint")
	if err != nil {
		return nil, err
	}
	bucket, err := opts.Required(StrategyS3Bucket, "bucket")
	if err != nil {
		return nil, err
	}
	keyPat, err := opts.Required(StrategyS3Bucket, "key_pattern")
	if err != nil {
		return nil, err
	}
	keyRe, err := compilePattern(StrategyS3Bucket, "key_pattern", platform.Expand(keyPat, plat))
	if err != nil {
		return nil, err
	}
	scheme, err := opts.scheme(StrategyS3Bucket, version.SchemeSemantic)
	if err != nil {
		return nil, err
	}

	secure := true
	if raw := opts.Get("use_ssl", ""); raw != "" {
		secure, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, &ConfigurationError{
				Component: StrategyS3Bucket, Option: "use_ssl", Reason: `must be "true" or "false"`,
			}
		}
	}

	accessKey := opts.Get("access_key", "")
	secretKey := opts.Get("secret_key", "")
	if (accessKey == "") != (secretKey == "") {
		return nil, &ConfigurationError{
			Component: StrategyS3Bucket, Option: "access_key",
			Reason: "access_key and secret_key must be set together",
		}
	}
	anonymous := accessKey == ""

	creds := credentials.NewStaticV4(accessKey, secretKey, "")
	if anonymous {
		creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: opts.Get("region", ""),
	})
	if err != nil {
		return nil, &ConfigurationError{
			Component: StrategyS3Bucket, Option: "endpoint", Reason: err.Error(),
		}
	}

	return &S3Bucket{
		client:    client,
		endpoint:  endpoint,
		bucket:    bucket,
		prefix:    opts.Get("prefix", ""),
		keyRe:     keyRe,
		scheme:    scheme,
		filename:  opts.Get("filename", ""),
		secure:    secure,
		anonymous: anonymous,
	}, nil
}

func (s *S3Bucket) Name() string { return StrategyS3Bucket }

func (s *S3Bucket) Capabilities() Capability { return CapProbeVersion | CapDownloadFile }

// listKeys collects the object keys under the configured prefix.
func (s *S3Bucket) listKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list bucket %s: %w", s.bucket, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Probe lists the prefix and reports the greatest version among matching
// keys.
func (s *S3Bucket) Probe(ctx context.Context) (version.Record, error) {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return version.Record{}, err
	}
	ver, _, err := pickLatest(keys, s.keyRe, s.scheme)
	if err != nil {
		return version.Record{}, fmt.Errorf("bucket %s prefix %q: %w", s.bucket, s.prefix, err)
	}
	return ver, nil
}

// objectURL produces a fetchable URL for one object: presigned when we hold
// credentials, plain path-style otherwise.
func (s *S3Bucket) objectURL(ctx context.Context, key string) (string, error) {
	if s.anonymous {
		scheme := "https"
		if !s.secure {
			scheme = "http"
		}
		u := url.URL{Scheme: scheme, Host: s.endpoint, Path: "/" + s.bucket + "/" + key}
		return u.String(), nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", s.bucket, key, err)
	}
	return u.String(), nil
}

func (s *S3Bucket) ResolveAndFetch(ctx context.Context, engine *fetch.Engine, req ArtifactRequest) (*version.Record, *fetch.Result, error) {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		ver version.Record
		key string
	)
	if req.Known != nil {
		// Repair: find the object carrying exactly the known version. If it
		// is gone the repair fails; the next check probes whatever replaced
		// it and refreshes normally.
		ver = *req.Known
		key, err = matchKey(keys, s.keyRe, s.scheme, ver)
		if err != nil {
			return nil, nil, fmt.Errorf("bucket %s prefix %q: %w", s.bucket, s.prefix, err)
		}
	} else {
		ver, key, err = pickLatest(keys, s.keyRe, s.scheme)
		if err != nil {
			return nil, nil, fmt.Errorf("bucket %s prefix %q: %w", s.bucket, s.prefix, err)
		}
	}

	artifactURL, err := s.objectURL(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	dest, _, err := resolveDestination(StrategyS3Bucket, req, s.filename, "https://"+s.endpoint+"/"+key)
	if err != nil {
		return nil, nil, err
	}

	res, err := engine.Fetch(ctx, fetch.Request{
		URL:           artifactURL,
		Destination:   dest,
		Validators:    req.Validators,
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		return nil, nil, err
	}

	return &ver, res, nil
}

// pickLatest returns the greatest version captured from keys and the key
// carrying it. Keys that match the pattern but hold an unparseable version
// are skipped rather than poisoning the listing.
func pickLatest(keys []string, re *regexp.Regexp, scheme version.Scheme) (version.Record, string, error) {
	var (
		best    version.Record
		bestKey string
	)
	for _, key := range keys {
		m := re.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		rec, err := version.New(m[1], scheme, "probe:"+StrategyS3Bucket)
		if err != nil {
			continue
		}
		if bestKey == "" || version.IsNewer(rec, best) {
			best, bestKey = rec, key
		}
	}
	if bestKey == "" {
		return version.Record{}, "", fmt.Errorf("no object key matches %q with a valid version", re.String())
	}
	return best, bestKey, nil
}

// matchKey returns the key whose captured version equals want.
func matchKey(keys []string, re *regexp.Regexp, scheme version.Scheme, want version.Record) (string, error) {
	for _, key := range keys {
		m := re.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		rec, err := version.New(m[1], scheme, "probe:"+StrategyS3Bucket)
		if err != nil {
			continue
		}
		if version.Compare(rec, want) == version.Equal {
			return key, nil
		}
	}
	return "", fmt.Errorf("no object key carries version %s", want.Raw)
}
