package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		snap analysis.Snapshot
		want string
	}{
		{
			"completed repo",
			analysis.Snapshot{
				Status:     analysis.StatusCompleted,
				Target:     analysis.RepoTarget("https://github.com/acme/billing"),
				Violations: []analysis.Violation{{}, {}, {}},
			},
			"StyleWatch: https://github.com/acme/billing analyzed, 3 violations",
		},
		{
			"completed inline",
			analysis.Snapshot{
				Status:     analysis.StatusCompleted,
				Target:     analysis.SourceTarget("class A {}", "A.java", false),
				Violations: []analysis.Violation{{}},
				Score:      7.5,
			},
			"StyleWatch: A.java checked, 1 violations, score 7.5",
		},
		{
			"failed",
			analysis.Snapshot{
				Status: analysis.StatusFailed,
				Target: analysis.RepoTarget("https://github.com/acme/x"),
				Err:    "Repository not found",
			},
			"StyleWatch: analysis of https://github.com/acme/x failed: Repository not found",
		},
		{
			"in flight",
			analysis.Snapshot{
				Status: analysis.StatusAnalyzing,
				Target: analysis.RepoTarget("https://github.com/acme/x"),
			},
			"StyleWatch: analysis of https://github.com/acme/x is analyzing",
		},
	}
	for _, tt := range tests {
		if got := Summary(tt.snap); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

type recordingNotifier struct {
	name  string
	err   error
	calls int
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Notify(_ context.Context, _ analysis.Snapshot) error {
	r.calls++
	return r.err
}

func TestNotifyAllContinuesPastFailures(t *testing.T) {
	broken := &recordingNotifier{name: "slack", err: errors.New("channel_not_found")}
	healthy := &recordingNotifier{name: "telegram"}

	NotifyAll(context.Background(), []Notifier{broken, healthy}, analysis.Snapshot{
		Status: analysis.StatusCompleted,
		Target: analysis.RepoTarget("https://github.com/acme/a"),
	})

	if broken.calls != 1 || healthy.calls != 1 {
		t.Fatalf("expected both notifiers called, got %d and %d", broken.calls, healthy.calls)
	}
}
