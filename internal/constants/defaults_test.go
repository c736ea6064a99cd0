package constants

import "testing"

func TestBuildInfoDefaults(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			name:  "DefaultVersion",
			value: DefaultVersion,
			want:  "0.1.0-dev",
		},
		{
			name:  "DefaultBuildTime",
			value: DefaultBuildTime,
			want:  "unknown",
		},
		{
			name:  "DefaultGitCommit",
			value: DefaultGitCommit,
			want:  "unknown",
		},
		{
			name:  "DefaultGoVersion",
			value: DefaultGoVersion,
			want:  "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != tt.want {
				t.Errorf("%s = %s, want %s", tt.name, tt.value, tt.want)
			}
		})
	}
}
