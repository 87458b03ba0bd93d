package utils

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "priority",
			expected: "priority",
		},
		{
			name:     "spaces and capitals",
			input:    "Resolution Time (hrs)",
			expected: "resolution_time_hrs",
		},
		{
			name:     "punctuation runs collapse",
			input:    "first--contact//date",
			expected: "first_contact_date",
		},
		{
			name:     "leading and trailing separators dropped",
			input:    "  _ticket id_ ",
			expected: "ticket_id",
		},
		{
			name:     "non-ascii letters dropped",
			input:    "Größe",
			expected: "gr_e",
		},
		{
			name:     "nothing usable",
			input:    "???",
			expected: "column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUniqueNamer(t *testing.T) {
	var namer UniqueNamer

	got := []string{
		namer.Next("hist_age"),
		namer.Next("hist_age"),
		namer.Next("bar_status"),
		namer.Next("hist_age"),
		namer.Next("hist_age_2"),
	}
	want := []string{"hist_age", "hist_age_2", "bar_status", "hist_age_3", "hist_age_2_2"}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, got[i], want[i])
		}
	}
}
