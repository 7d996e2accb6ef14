package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/discovery"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/extract"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/fetch"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/history"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/output"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/platform"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/recipe"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/settings"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/source"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/store"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "check [app-id...]",
		Short: "Check tracked applications for new releases",
		Long: `Check probes every application declared in the recipe file (or only the
named ones), downloads and verifies new artifacts, and records the results.

An application whose recorded version is current and whose artifact is intact
on disk is skipped without any transfer. A damaged or missing artifact is
re-fetched at the recorded version. Checks run in parallel; one application's
failure never aborts the others.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args, workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 4, "Maximum checks in flight at once")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *rootOptions, args []string, workers int) error {
	ctx := cmd.Context()

	s, err := opts.loadSettings()
	if err != nil {
		return err
	}
	writer, format, err := opts.writer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	apps, plat, err := loadApps(ctx, s, args)
	if err != nil {
		return err
	}

	reqs, err := buildRequests(apps, plat)
	if err != nil {
		return err
	}

	lock, err := store.AcquireLock(s.StorePath)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Load(s.StorePath)
	if err != nil {
		return err
	}

	engine := fetch.NewEngine().
		WithRetries(s.Fetch.Retries).
		WithTimeout(s.FetchTimeout()).
		WithUserAgent(s.Fetch.UserAgent)

	orch := discovery.NewOrchestrator(st, engine, s.DownloadDir)
	results := orch.CheckAll(ctx, reqs, workers)

	journalResults(ctx, cmd.ErrOrStderr(), s.HistoryPath, results)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}

	if format == output.FormatText {
		printCheckText(cmd.OutOrStdout(), cmd.ErrOrStderr(), results)
	} else {
		if err := writer.Write(checkRows(results)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d application checks failed", failed, len(results))
	}
	return nil
}

// loadApps detects the platform, parses the recipe file, and narrows the app
// list to the requested ids. The detected platform is returned so strategy
// construction reuses it instead of detecting twice.
func loadApps(ctx context.Context, s *settings.Settings, ids []string) ([]recipe.App, *platform.Info, error) {
	plat, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return nil, nil, err
	}

	parser := recipe.NewParser(platform.StaticDetector{Info: plat})
	rec, err := parser.ParseFile(ctx, s.RecipePath)
	if err != nil {
		return nil, nil, err
	}
	if len(rec.Apps) == 0 {
		return nil, nil, fmt.Errorf("recipe %s declares no applications", s.RecipePath)
	}
	if len(ids) == 0 {
		return rec.Apps, plat, nil
	}

	byID := make(map[string]recipe.App, len(rec.Apps))
	known := make([]string, 0, len(rec.Apps))
	for _, app := range rec.Apps {
		byID[app.ID] = app
		known = append(known, app.ID)
	}

	selected := make([]recipe.App, 0, len(ids))
	for _, id := range ids {
		app, ok := byID[id]
		if !ok {
			return nil, nil, fmt.Errorf("unknown application %q (recipe declares: %v)", id, known)
		}
		selected = append(selected, app)
	}
	return selected, plat, nil
}

// buildRequests constructs strategies and extractors for every app up front,
// so configuration mistakes surface before any network or store activity.
func buildRequests(apps []recipe.App, plat *platform.Info) ([]discovery.CheckRequest, error) {
	sources := source.NewRegistry(source.DefaultFactories())
	extractors := extract.NewRegistry(extract.DefaultFactories())

	reqs := make([]discovery.CheckRequest, 0, len(apps))
	for _, app := range apps {
		strat, err := sources.New(app.Strategy, app.Options, plat)
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", app.ID, err)
		}
		req := discovery.CheckRequest{
			ApplicationID: app.ID,
			Strategy:      strat,
		}
		if app.ExtractMethod != "" {
			ex, err := extractors.New(app.ExtractMethod, app.ExtractOptions)
			if err != nil {
				return nil, fmt.Errorf("app %s: %w", app.ID, err)
			}
			req.Extractor = ex
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// journalResults appends one history entry per check. The journal is
// best-effort: the store already holds the authoritative state, so a journal
// failure warns and moves on rather than failing the run.
func journalResults(ctx context.Context, errw io.Writer, historyPath string, results []discovery.CheckResult) {
	if historyPath == "" {
		return
	}
	j, err := history.Open(historyPath)
	if err != nil {
		fmt.Fprintf(errw, "Warning: history journal unavailable: %v\n", err)
		return
	}
	defer j.Close()

	for _, res := range results {
		e := history.Entry{ApplicationID: res.ApplicationID}
		if res.Err != nil {
			e.Kind = history.KindFailed
			e.Error = res.Err.Error()
		} else {
			e.Kind = string(res.Outcome.Kind)
			e.Version = res.Outcome.Version.Raw
			e.Path = res.Outcome.Path
			e.ContentHash = res.Outcome.ContentHash
			if res.Outcome.Previous != nil {
				e.Previous = res.Outcome.Previous.Raw
			}
		}
		if err := j.Append(ctx, e); err != nil {
			fmt.Fprintf(errw, "Warning: failed to journal %s: %v\n", res.ApplicationID, err)
		}
	}
}

func printCheckText(w, errw io.Writer, results []discovery.CheckResult) {
	var updated, repaired, skipped, failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			// Check errors already carry the application id.
			fmt.Fprintf(errw, "%v\n", res.Err)
			continue
		}
		fmt.Fprintln(w, res.Outcome.String())
		switch res.Outcome.Kind {
		case discovery.Updated:
			updated++
		case discovery.Repaired:
			repaired++
		case discovery.Skipped:
			skipped++
		}
	}
	fmt.Fprintf(w, "\nChecked %d application(s): %d updated, %d repaired, %d skipped, %d failed\n",
		len(results), updated, repaired, skipped, failed)
}

// checkRow is the structured-output shape of one check result.
type checkRow struct {
	ApplicationID string `json:"application_id" yaml:"application_id"`
	Kind          string `json:"kind" yaml:"kind"`
	Previous      string `json:"previous,omitempty" yaml:"previous,omitempty"`
	Version       string `json:"version,omitempty" yaml:"version,omitempty"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	ContentHash   string `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

func checkRows(results []discovery.CheckResult) []checkRow {
	rows := make([]checkRow, 0, len(results))
	for _, res := range results {
		row := checkRow{ApplicationID: res.ApplicationID}
		if res.Err != nil {
			row.Kind = history.KindFailed
			row.Error = res.Err.Error()
		} else {
			row.Kind = string(res.Outcome.Kind)
			row.Version = res.Outcome.Version.Raw
			row.Path = res.Outcome.Path
			row.ContentHash = res.Outcome.ContentHash
			if res.Outcome.Previous != nil {
				row.Previous = res.Outcome.Previous.Raw
			}
		}
		rows = append(rows, row)
	}
	return rows
}
