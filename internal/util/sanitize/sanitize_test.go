package sanitize

import (
	"testing"
)

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Windows line endings",
			input:    "singularity run\r\nbrainprep",
			expected: "singularity run\nbrainprep",
		},
		{
			name:     "BOM from a settings file",
			input:    "\uFEFFsingularity run image.simg",
			expected: "singularity run image.simg",
		},
		{
			name:     "Zero-width space inside a flag",
			input:    "--clean\u200Benv",
			expected: "--cleanenv",
		},
		{
			name:     "Tabs and repeated spaces",
			input:    "singularity\t run   --bind  /data",
			expected: "singularity run --bind /data",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeCommand(tt.input); got != tt.expected {
				t.Errorf("SanitizeCommand(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSplitCommand(t *testing.T) {
	got := SplitCommand("  singularity run\t--bind /data\r\n image.simg brainprep cat12vbm ")
	want := []string{"singularity", "run", "--bind", "/data", "image.simg", "brainprep", "cat12vbm"}
	if len(got) != len(want) {
		t.Fatalf("SplitCommand() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeField(t *testing.T) {
	if got := SanitizeField("  ses-M00\u200B "); got != "ses-M00" {
		t.Errorf("SanitizeField() = %q, want ses-M00", got)
	}
}

func TestIsSafeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"sub-0001", true},
		{"ses-M03Li", true},
		{"sub-*", false},
		{"sub-[01]", false},
		{"sub-{a,b}", false},
		{"a/b", false},
		{"..", false},
		{"", false},
		{"sub-01\u200B", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			if got := IsSafeLabel(tt.label); got != tt.want {
				t.Errorf("IsSafeLabel(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}
