package history

import (
	"testing"
	"time"
)

func TestRelativeTime(t *testing.T) {
	now := epoch
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "Just now"},
		{59 * time.Second, "Just now"},
		{5 * time.Minute, "5m ago"},
		{59 * time.Minute, "59m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := RelativeTime(now.Add(-tt.ago).UnixMilli(), now); got != tt.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}

	old := now.Add(-8 * 24 * time.Hour)
	if got, want := RelativeTime(old.UnixMilli(), now), old.Local().Format("2006-01-02 15:04"); got != want {
		t.Errorf("RelativeTime(8d) = %q, want %q", got, want)
	}
}

func TestLabel(t *testing.T) {
	if got := Label("London", "GB"); got != "London, GB" {
		t.Errorf("Label() = %q", got)
	}
	if got := Label("Paris", ""); got != "Paris" {
		t.Errorf("Label() = %q", got)
	}
}
