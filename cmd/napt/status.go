package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/store"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
)

// Artifact health states reported by status.
const (
	artifactOK       = "ok"       // file present, digest matches the record
	artifactMissing  = "missing"  // recorded path does not exist
	artifactModified = "modified" // file present but bytes differ from the record
	artifactNone     = "none"     // record carries no artifact
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached versions and artifact health",
		Long: `Status lists every application in the cache store with its recorded
version and whether the downloaded artifact is still intact on disk. It reads
the store as-is and never touches the network.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, opts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *rootOptions) error {
	s, err := opts.loadSettings()
	if err != nil {
		return err
	}
	writer, _, err := opts.writer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	st, err := store.Load(s.StorePath)
	if err != nil {
		return err
	}
	if st.Len() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No applications tracked yet. Run 'napt check' first.")
		return nil
	}

	rows := make([]statusRow, 0, st.Len())
	for _, rec := range st.All() {
		rows = append(rows, statusRowFor(rec))
	}
	return writer.Write(rows)
}

// statusRow is one application's cache state as reported by status.
type statusRow struct {
	ApplicationID string    `json:"application_id" yaml:"application_id"`
	Version       string    `json:"version,omitempty" yaml:"version,omitempty"`
	Scheme        string    `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Path          string    `json:"path,omitempty" yaml:"path,omitempty"`
	Artifact      string    `json:"artifact" yaml:"artifact"`
	LastCheckedAt time.Time `json:"last_checked_at" yaml:"last_checked_at"`
	LastChangedAt time.Time `json:"last_changed_at" yaml:"last_changed_at"`
}

func (r statusRow) String() string {
	ver := r.Version
	if ver == "" {
		ver = "-"
	}
	return fmt.Sprintf("%-20s %-16s artifact=%-8s checked %s",
		r.ApplicationID, ver, r.Artifact, r.LastCheckedAt.Local().Format("2006-01-02 15:04:05"))
}

func statusRowFor(rec *store.Record) statusRow {
	row := statusRow{
		ApplicationID: rec.ApplicationID,
		Path:          rec.ResolvedFilePath,
		Artifact:      artifactHealth(rec),
		LastCheckedAt: rec.LastCheckedAt,
		LastChangedAt: rec.LastChangedAt,
	}
	if rec.KnownVersion != nil {
		row.Version = rec.KnownVersion.Raw
		row.Scheme = string(rec.KnownVersion.Scheme)
	}
	return row
}

// artifactHealth re-verifies the recorded file against its recorded digest,
// the same test the orchestrator applies before deciding to skip.
func artifactHealth(rec *store.Record) string {
	if rec.ResolvedFilePath == "" || rec.ContentHash == "" {
		return artifactNone
	}
	if _, err := os.Stat(rec.ResolvedFilePath); err != nil {
		return artifactMissing
	}
	hash, err := verify.FileSHA256(rec.ResolvedFilePath)
	if err != nil {
		return artifactMissing
	}
	if !verify.DigestsEqual(hash, rec.ContentHash) {
		return artifactModified
	}
	return artifactOK
}
