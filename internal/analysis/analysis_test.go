package analysis

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
		ok   bool
	}{
		{"PENDING", StatusPending, true},
		{"Cloning", StatusCloning, true},
		{"analyzing", StatusAnalyzing, true},
		{" COMPLETED ", StatusCompleted, true},
		{"FAILED", StatusFailed, true},
		{"RUNNING", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStatus(%q) = %q, %v; expected %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	tests := []struct {
		raw  string
		want Level
	}{
		{"ERROR", LevelError},
		{"warn", LevelWarning},
		{"WARNING", LevelWarning},
		{"ignore", LevelIgnore},
		{"info", LevelInfo},
		{"debug", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.raw); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, expected %q", tt.raw, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, st := range []Status{StatusIdle, StatusSubmitting, StatusPending, StatusCloning, StatusAnalyzing} {
		if st.Terminal() {
			t.Errorf("%q must not be terminal", st)
		}
	}
	for _, st := range []Status{StatusCompleted, StatusFailed} {
		if !st.Terminal() {
			t.Errorf("%q must be terminal", st)
		}
	}
}

func TestStatusRankAdvances(t *testing.T) {
	order := []Status{StatusIdle, StatusSubmitting, StatusPending, StatusCloning, StatusAnalyzing, StatusCompleted}
	for i := 1; i < len(order); i++ {
		if order[i].rank() <= order[i-1].rank() {
			t.Errorf("rank(%q) must exceed rank(%q)", order[i], order[i-1])
		}
	}
	if StatusCompleted.rank() != StatusFailed.rank() {
		t.Error("terminal statuses must share a rank")
	}
}

func TestTarget(t *testing.T) {
	repo := RepoTarget("https://github.com/acme/billing")
	if repo.Inline() {
		t.Error("repo target must not be inline")
	}
	if repo.String() != "https://github.com/acme/billing" {
		t.Errorf("unexpected repo string: %q", repo.String())
	}

	src := SourceTarget("class A {}", "A.java", true)
	if !src.Inline() {
		t.Error("source target must be inline")
	}
	if src.String() != "A.java" {
		t.Errorf("unexpected source string: %q", src.String())
	}

	anon := SourceTarget("class A {}", "", false)
	if anon.String() != "(inline source)" {
		t.Errorf("unexpected anonymous string: %q", anon.String())
	}
}
