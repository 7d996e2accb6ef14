// Package platform detects the host OS, architecture, and Linux distribution,
// and exposes the result to the rest of the pipeline: recipes receive it as a
// read-only Lua table for conditional blocks, and download strategies expand
// platform tokens in URL templates through Expand.
//
// Distribution details come from gopsutil. When distro detection fails the
// detector degrades to OS/arch only rather than failing the run.
package platform

import "context"

// Canonical Linux distribution families, for grouping related distros in
// recipe conditionals.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Linux Mint
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky, AlmaLinux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyGentoo  = "gentoo"  // Gentoo
	FamilyUnknown = "unknown" // anything unrecognized
)

// Info describes the host a run is executing on.
type Info struct {
	OS       string // "linux", "darwin", "windows"
	Arch     string // normalized: "amd64", "arm64"
	ArchRaw  string // original GOARCH value
	Platform string // distro ID (Linux only, e.g. "ubuntu")
	Family   string // canonical family (e.g. "debian")
	Version  string // distro version (Linux only, e.g. "22.04")
}

// Distro is the Linux distribution slice of Info; nil elsewhere.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// GetDistro returns distribution details on Linux when detection succeeded,
// nil otherwise.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{ID: i.Platform, Family: i.Family, Version: i.Version}
}

// IsLinux reports whether the host runs Linux.
func (i *Info) IsLinux() bool { return i.OS == "linux" }

// IsMacOS reports whether the host runs macOS.
func (i *Info) IsMacOS() bool { return i.OS == "darwin" }

// IsWindows reports whether the host runs Windows.
func (i *Info) IsWindows() bool { return i.OS == "windows" }

// IsAMD64 reports whether the normalized architecture is amd64.
func (i *Info) IsAMD64() bool { return i.Arch == "amd64" }

// IsARM64 reports whether the normalized architecture is arm64.
func (i *Info) IsARM64() bool { return i.Arch == "arm64" }

// IsAppleSilicon reports macOS on arm64.
func (i *Info) IsAppleSilicon() bool { return i.OS == "darwin" && i.Arch == "arm64" }

// IsDebianFamily reports a Debian-derived Linux distribution.
func (i *Info) IsDebianFamily() bool { return i.OS == "linux" && i.Family == FamilyDebian }

// IsRHELFamily reports a RHEL-derived Linux distribution.
func (i *Info) IsRHELFamily() bool { return i.OS == "linux" && i.Family == FamilyRHEL }

// IsFedoraFamily reports a Fedora-derived Linux distribution.
func (i *Info) IsFedoraFamily() bool { return i.OS == "linux" && i.Family == FamilyFedora }

// IsSUSEFamily reports a SUSE-derived Linux distribution.
func (i *Info) IsSUSEFamily() bool { return i.OS == "linux" && i.Family == FamilySUSE }

// IsArchFamily reports an Arch-derived Linux distribution.
func (i *Info) IsArchFamily() bool { return i.OS == "linux" && i.Family == FamilyArch }

// IsAlpine reports Alpine Linux.
func (i *Info) IsAlpine() bool { return i.OS == "linux" && i.Family == FamilyAlpine }

// IsGentoo reports Gentoo.
func (i *Info) IsGentoo() bool { return i.OS == "linux" && i.Family == FamilyGentoo }

// Detector produces platform information for a run.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}
