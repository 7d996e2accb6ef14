package discovery

import (
	"fmt"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// Kind classifies how a check concluded.
type Kind string

const (
	// Skipped means the recorded version is current and the artifact was
	// verified intact on disk; nothing was transferred or written.
	Skipped Kind = "skipped"
	// Repaired means the recorded version is current but the artifact was
	// missing or damaged; it was re-fetched without changing the version.
	Repaired Kind = "repaired"
	// Updated means a new version was discovered, fetched, and recorded.
	Updated Kind = "updated"
)

// Outcome is the terminal result of one application check.
type Outcome struct {
	ApplicationID string `json:"application_id"`
	Kind          Kind   `json:"kind"`

	// Previous is the version recorded before this check; nil on first
	// discovery.
	Previous *version.Record `json:"previous,omitempty"`
	// Version is the version now recorded (unchanged for Skipped/Repaired).
	Version version.Record `json:"version"`
	// Path is the artifact's resolved location on disk.
	Path string `json:"path,omitempty"`
	// ContentHash is the SHA-256 of the artifact at Path.
	ContentHash string `json:"content_hash,omitempty"`
}

func (o *Outcome) String() string {
	switch o.Kind {
	case Skipped:
		return fmt.Sprintf("%s: skipped (%s current)", o.ApplicationID, o.Version.Raw)
	case Repaired:
		return fmt.Sprintf("%s: repaired %s at %s", o.ApplicationID, o.Version.Raw, o.Path)
	case Updated:
		prev := "none"
		if o.Previous != nil {
			prev = o.Previous.Raw
		}
		return fmt.Sprintf("%s: updated %s -> %s (%s)", o.ApplicationID, prev, o.Version.Raw, o.Path)
	default:
		return fmt.Sprintf("%s: %s", o.ApplicationID, o.Kind)
	}
}
