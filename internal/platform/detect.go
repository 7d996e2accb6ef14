package platform

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/host"
)

// RealDetector detects the live host via runtime constants and gopsutil.
type RealDetector struct{}

// NewDetector returns a detector for the live host.
func NewDetector() Detector {
	return &RealDetector{}
}

// StaticDetector always reports a fixed Info. It lets callers that already
// ran detection share the result (recipe parsing and strategy construction
// happen in one run), and gives tests a host-independent detector.
type StaticDetector struct {
	Info *Info
}

// Detect returns the fixed Info.
func (d StaticDetector) Detect(ctx context.Context) (*Info, error) {
	return d.Info, nil
}

// Detect reads OS and architecture from the runtime, then on Linux asks
// gopsutil for distribution details. Distro detection failure is not fatal:
// the result degrades to OS/arch so recipes without distro conditionals keep
// working. Context cancellation is fatal.
func (d *RealDetector) Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:      runtime.GOOS,
		ArchRaw: runtime.GOARCH,
	}

	arch, err := normalizeArch(runtime.GOARCH)
	if err != nil {
		return nil, fmt.Errorf("platform detection failed: %w", err)
	}
	info.Arch = arch

	if runtime.GOOS == "linux" {
		plat, family, ver, err := host.PlatformInformationWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
			}
			return info, nil
		}

		plat = normalizePlatform(plat)
		if plat != "" {
			info.Platform = plat
			info.Family = mapFamily(family)
			info.Version = normalizePlatform(ver)
		}
	}

	return info, nil
}
