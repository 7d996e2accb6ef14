package discovery

import "testing"

func TestOutcomeString(t *testing.T) {
	v210 := mustVersion(t, "2.1.0")
	v220 := mustVersion(t, "2.2.0")

	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{
			name:    "skipped",
			outcome: Outcome{ApplicationID: "firefox", Kind: Skipped, Version: v210},
			want:    "firefox: skipped (2.1.0 current)",
		},
		{
			name: "repaired",
			outcome: Outcome{
				ApplicationID: "firefox", Kind: Repaired,
				Version: v210, Path: "/tmp/firefox.pkg",
			},
			want: "firefox: repaired 2.1.0 at /tmp/firefox.pkg",
		},
		{
			name: "first discovery",
			outcome: Outcome{
				ApplicationID: "firefox", Kind: Updated,
				Version: v210, Path: "/tmp/firefox.pkg",
			},
			want: "firefox: updated none -> 2.1.0 (/tmp/firefox.pkg)",
		},
		{
			name: "upgrade",
			outcome: Outcome{
				ApplicationID: "firefox", Kind: Updated,
				Previous: &v210, Version: v220, Path: "/tmp/firefox.pkg",
			},
			want: "firefox: updated 2.1.0 -> 2.2.0 (/tmp/firefox.pkg)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
