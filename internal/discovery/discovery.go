// Package discovery runs the per-application check pipeline: probe the
// source (or skip straight to a conditional fetch), decide between skip,
// repair, and refresh, route the transfer through the fetch engine, and
// record the result in the cache store.
//
// The state machine per check is Start -> ProbeOrSkip -> {Skip, Repair,
// Refresh} -> Done. A skip writes nothing, so back-to-back checks with an
// unchanged source leave the store byte-identical. Every store write happens
// strictly after the artifact write it describes has durably succeeded.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/extract"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/logging"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/source"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/store"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// Orchestrator coordinates strategies, the fetch engine, and the cache store.
// It is safe for concurrent Check calls within one process; cross-process
// store access must be serialized externally (see store.AcquireLock).
type Orchestrator struct {
	store       *store.Store
	engine      *fetch.Engine
	downloadDir string
	logger      *slog.Logger
	clock       Clock
}

// NewOrchestrator wires the pipeline. Artifacts land under downloadDir in a
// per-application subdirectory, alongside any checksum or signature sidecars.
func NewOrchestrator(st *store.Store, engine *fetch.Engine, downloadDir string) *Orchestrator {
	return &Orchestrator{
		store:       st,
		engine:      engine,
		downloadDir: downloadDir,
		logger:      logging.New("discovery"),
		clock:       RealClock{},
	}
}

// CheckRequest names one application and the collaborators that can discover
// and fetch it.
type CheckRequest struct {
	ApplicationID string
	Strategy      source.Strategy
	// Extractor derives the version from the downloaded file. Required for
	// strategies without a version probe, unused otherwise.
	Extractor extract.Extractor
}

// Check runs the full pipeline for one application and reports the outcome.
// Errors carry the application id; the store is never left describing a file
// state that does not exist on disk.
func (o *Orchestrator) Check(ctx context.Context, req CheckRequest) (*Outcome, error) {
	out, err := o.check(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", req.ApplicationID, err)
	}
	return out, nil
}

func (o *Orchestrator) check(ctx context.Context, req CheckRequest) (*Outcome, error) {
	if req.ApplicationID == "" {
		return nil, &source.ConfigurationError{Component: "check", Reason: "application id is required"}
	}
	if req.Strategy == nil {
		return nil, &source.ConfigurationError{Component: "check", Reason: "strategy is required"}
	}

	caps := req.Strategy.Capabilities()
	if !caps.Has(source.CapDownloadFile) {
		return nil, &source.ConfigurationError{
			Component: req.Strategy.Name(), Reason: "strategy cannot download artifacts",
		}
	}
	if !caps.Has(source.CapProbeVersion) && req.Extractor == nil {
		return nil, &source.ConfigurationError{
			Component: req.Strategy.Name(),
			Reason:    "strategy has no version probe and no extractor was configured",
		}
	}

	prior, _ := o.store.Get(req.ApplicationID)

	if !caps.Has(source.CapProbeVersion) {
		// No cheap probe; the conditional request makes the no-change case
		// cheap instead.
		return o.refresh(ctx, req, prior, o.sendableValidators(prior))
	}

	probed, err := req.Strategy.Probe(ctx)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	o.logger.Debug("probe result",
		"app_id", req.ApplicationID, "strategy", req.Strategy.Name(), "version", probed.Raw)

	if prior != nil && prior.KnownVersion != nil &&
		version.Compare(probed, *prior.KnownVersion) == version.Equal {
		if o.artifactIntact(prior) {
			o.logger.Info("artifact current, skipping",
				"app_id", req.ApplicationID, "version", probed.Raw, "path", prior.ResolvedFilePath)
			return &Outcome{
				ApplicationID: req.ApplicationID,
				Kind:          Skipped,
				Version:       *prior.KnownVersion,
				Path:          prior.ResolvedFilePath,
				ContentHash:   prior.ContentHash,
			}, nil
		}
		o.logger.Warn("recorded artifact missing or damaged, repairing",
			"app_id", req.ApplicationID, "version", probed.Raw, "path", prior.ResolvedFilePath)
		return o.repair(ctx, req, prior, probed)
	}

	// New application or the source moved on: full refresh. Stored validators
	// describe the old version's transfer and must not suppress the new one.
	return o.refresh(ctx, req, prior, nil)
}

// repair re-fetches the recorded version into the recorded path. The version
// is pinned so the strategy does not probe again; validators are withheld so
// the damaged copy cannot be "confirmed" by a not-modified response.
func (o *Orchestrator) repair(ctx context.Context, req CheckRequest, prior *store.Record, probed version.Record) (*Outcome, error) {
	ver, res, err := req.Strategy.ResolveAndFetch(ctx, o.engine, source.ArtifactRequest{
		ApplicationID: req.ApplicationID,
		DestDir:       o.destDir(req.ApplicationID),
		DestPath:      prior.ResolvedFilePath,
		Known:         &probed,
	})
	if err != nil {
		return nil, fmt.Errorf("repair fetch: %w", err)
	}

	final := probed
	if ver != nil {
		final = *ver
	}

	rec, err := o.commit(req.ApplicationID, prior, final, res)
	if err != nil {
		return nil, err
	}

	// If the source moved between probe and fetch, what landed on disk is a
	// newer version and the outcome must say so.
	kind := Repaired
	var previous *version.Record
	if version.Compare(final, *prior.KnownVersion) != version.Equal {
		kind = Updated
		previous = prior.KnownVersion
	}
	o.logger.Info(string(kind),
		"app_id", req.ApplicationID, "version", final.Raw, "path", rec.ResolvedFilePath)
	return &Outcome{
		ApplicationID: req.ApplicationID,
		Kind:          kind,
		Previous:      previous,
		Version:       final,
		Path:          rec.ResolvedFilePath,
		ContentHash:   rec.ContentHash,
	}, nil
}

// refresh performs the actual transfer and derives the final version from the
// strategy's answer or, for file-first strategies, from post-download
// extraction.
func (o *Orchestrator) refresh(ctx context.Context, req CheckRequest, prior *store.Record, validators map[string]string) (*Outcome, error) {
	ver, res, err := req.Strategy.ResolveAndFetch(ctx, o.engine, source.ArtifactRequest{
		ApplicationID: req.ApplicationID,
		DestDir:       o.destDir(req.ApplicationID),
		Validators:    validators,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	if res.Status == fetch.StatusNotModified {
		// Normally reachable only when validators were sent, which requires a
		// prior record with an intact artifact. Nothing to write.
		if prior == nil || prior.KnownVersion == nil {
			return nil, fmt.Errorf("server answered not-modified to an unconditional request for %s", res.URL)
		}
		o.logger.Info("source unchanged, skipping",
			"app_id", req.ApplicationID, "version", prior.KnownVersion.Raw)
		return &Outcome{
			ApplicationID: req.ApplicationID,
			Kind:          Skipped,
			Version:       *prior.KnownVersion,
			Path:          prior.ResolvedFilePath,
			ContentHash:   prior.ContentHash,
		}, nil
	}

	var final version.Record
	switch {
	case ver != nil:
		final = *ver
	case req.Extractor != nil:
		final, err = req.Extractor.Extract(ctx, res.LocalPath)
		if err != nil {
			// The file may still be installable; keep it, record nothing.
			o.logger.Warn("version extraction failed, keeping file unrecorded",
				"app_id", req.ApplicationID, "path", res.LocalPath, "error", err)
			return nil, err
		}
	default:
		return nil, fmt.Errorf("strategy %s returned no version", req.Strategy.Name())
	}

	rec, err := o.commit(req.ApplicationID, prior, final, res)
	if err != nil {
		return nil, err
	}

	kind := Updated
	var previous *version.Record
	if prior != nil && prior.KnownVersion != nil {
		if version.Compare(final, *prior.KnownVersion) == version.Equal {
			// Same version re-downloaded (file-first full transfer, or the
			// source rolled back between probe and fetch): the artifact was
			// refreshed, the version was not.
			kind = Repaired
		} else {
			previous = prior.KnownVersion
		}
	}
	o.logger.Info(string(kind), "app_id", req.ApplicationID,
		"version", final.Raw, "path", rec.ResolvedFilePath, "hash", rec.ContentHash)
	return &Outcome{
		ApplicationID: req.ApplicationID,
		Kind:          kind,
		Previous:      previous,
		Version:       final,
		Path:          rec.ResolvedFilePath,
		ContentHash:   rec.ContentHash,
	}, nil
}

// commit writes the post-fetch record. The engine has already made the
// artifact durable, so the store may now describe it.
func (o *Orchestrator) commit(appID string, prior *store.Record, ver version.Record, res *fetch.Result) (*store.Record, error) {
	now := o.clock.Now().UTC()
	rec := &store.Record{
		ApplicationID:    appID,
		KnownVersion:     &ver,
		Validators:       res.Validators,
		ResolvedFilePath: res.LocalPath,
		ContentHash:      res.ContentHash,
		LastCheckedAt:    now,
		LastChangedAt:    now,
	}
	if prior != nil && prior.KnownVersion != nil &&
		version.Compare(*prior.KnownVersion, ver) == version.Equal &&
		prior.ContentHash == res.ContentHash {
		// Same version, same bytes: the artifact merely moved through a
		// repair, not a change.
		rec.LastChangedAt = prior.LastChangedAt
	}

	if err := o.store.Put(rec); err != nil {
		return nil, fmt.Errorf("record outcome: %w", err)
	}
	if err := o.store.Flush(); err != nil {
		return nil, fmt.Errorf("flush store: %w", err)
	}
	return rec, nil
}

// sendableValidators returns the stored freshness tokens only when the
// recorded artifact is verified intact on disk. A not-modified answer keeps
// the recorded file, so the tokens must never vouch for bytes that are gone.
func (o *Orchestrator) sendableValidators(prior *store.Record) map[string]string {
	if prior == nil || prior.KnownVersion == nil || len(prior.Validators) == 0 {
		return nil
	}
	if !o.artifactIntact(prior) {
		return nil
	}
	return prior.Validators
}

// artifactIntact reports whether the recorded file exists with the recorded
// digest. Skipping is only ever decided on verified on-disk state.
func (o *Orchestrator) artifactIntact(rec *store.Record) bool {
	if rec.ResolvedFilePath == "" || rec.ContentHash == "" {
		return false
	}
	if _, err := os.Stat(rec.ResolvedFilePath); err != nil {
		return false
	}
	hash, err := verify.FileSHA256(rec.ResolvedFilePath)
	if err != nil {
		return false
	}
	return verify.DigestsEqual(hash, rec.ContentHash)
}

func (o *Orchestrator) destDir(appID string) string {
	return filepath.Join(o.downloadDir, appID)
}
