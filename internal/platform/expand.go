package platform

import "strings"

// Expand substitutes platform tokens in a URL or path template. Recognized
// tokens are {os}, {arch}, {arch_raw}, {distro}, {distro_family}, and
// {distro_version}; distro tokens expand to the empty string outside Linux.
// Unrecognized braced text is left untouched so non-platform tokens (for
// example a version placeholder) survive for later substitution.
func Expand(pattern string, info *Info) string {
	if info == nil || !strings.Contains(pattern, "{") {
		return pattern
	}
	r := strings.NewReplacer(
		"{os}", info.OS,
		"{arch}", info.Arch,
		"{arch_raw}", info.ArchRaw,
		"{distro}", info.Platform,
		"{distro_family}", info.Family,
		"{distro_version}", info.Version,
	)
	return r.Replace(pattern)
}
