package platform

import "testing"

func TestExpand(t *testing.T) {
	linux := &Info{
		OS:       "linux",
		Arch:     "amd64",
		ArchRaw:  "x86_64",
		Platform: "ubuntu",
		Family:   FamilyDebian,
		Version:  "22.04",
	}
	mac := &Info{OS: "darwin", Arch: "arm64", ArchRaw: "arm64"}

	tests := []struct {
		name    string
		pattern string
		info    *Info
		want    string
	}{
		{
			name:    "os and arch",
			pattern: "https://dl.example.com/app-{os}-{arch}.tar.gz",
			info:    linux,
			want:    "https://dl.example.com/app-linux-amd64.tar.gz",
		},
		{
			name:    "arch_raw",
			pattern: "app.{arch_raw}.rpm",
			info:    linux,
			want:    "app.x86_64.rpm",
		},
		{
			name:    "distro tokens",
			pattern: "{distro}/{distro_version}/{distro_family}",
			info:    linux,
			want:    "ubuntu/22.04/debian",
		},
		{
			name:    "distro tokens empty off linux",
			pattern: "x{distro}y",
			info:    mac,
			want:    "xy",
		},
		{
			name:    "unknown tokens survive",
			pattern: "https://dl.example.com/{version}/app-{os}.pkg",
			info:    mac,
			want:    "https://dl.example.com/{version}/app-darwin.pkg",
		},
		{
			name:    "no tokens",
			pattern: "https://dl.example.com/app.pkg",
			info:    linux,
			want:    "https://dl.example.com/app.pkg",
		},
		{
			name:    "nil info",
			pattern: "app-{os}.pkg",
			info:    nil,
			want:    "app-{os}.pkg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expand(tt.pattern, tt.info); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}
