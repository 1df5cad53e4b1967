package github

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestSplitURL(t *testing.T) {
	tests := []struct {
		raw   string
		owner string
		repo  string
		ok    bool
	}{
		{"https://github.com/acme/billing", "acme", "billing", true},
		{"http://github.com/acme/billing", "acme", "billing", true},
		{"https://www.github.com/acme/billing", "acme", "billing", true},
		{"https://github.com/acme/billing.git", "acme", "billing", true},
		{"https://github.com/acme/billing/tree/main/src", "acme", "billing", true},
		{"  https://github.com/acme/billing  ", "acme", "billing", true},
		{"github.com/acme/billing", "acme", "billing", true},
		{"https://gitlab.com/acme/billing", "", "", false},
		{"https://github.com/acme", "", "", false},
		{"https://github.com/acme/", "", "", false},
		{"https://github.com//billing", "", "", false},
		{"https://github.com/acme/.git", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		owner, repo, ok := SplitURL(tt.raw)
		if owner != tt.owner || repo != tt.repo || ok != tt.ok {
			t.Errorf("SplitURL(%q) = %q, %q, %v; expected %q, %q, %v",
				tt.raw, owner, repo, ok, tt.owner, tt.repo, tt.ok)
		}
	}
}

func testPreflightClient(t *testing.T, langs string) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/billing", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"billing","default_branch":"main","private":true}`)
	})
	mux.HandleFunc("/repos/acme/billing/languages", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, langs)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient("")
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	c.gh.BaseURL = base
	return c
}

func TestPreflight(t *testing.T) {
	c := testPreflightClient(t, `{"Java":120000,"Shell":300}`)

	rep, err := c.Preflight(context.Background(), "https://github.com/acme/billing")
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	if rep.FullName() != "acme/billing" {
		t.Fatalf("unexpected name: %q", rep.FullName())
	}
	if rep.DefaultBranch != "main" || !rep.Private {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if !rep.HasJava {
		t.Fatal("expected Java detection")
	}
	if rep.Languages["Shell"] != 300 {
		t.Fatalf("unexpected languages: %v", rep.Languages)
	}
}

func TestPreflightWithoutJava(t *testing.T) {
	c := testPreflightClient(t, `{"Kotlin":9000}`)

	rep, err := c.Preflight(context.Background(), "https://github.com/acme/billing")
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	if rep.HasJava {
		t.Fatal("expected no Java")
	}
}

func TestPreflightRejectsForeignURL(t *testing.T) {
	c := NewClient("")

	_, err := c.Preflight(context.Background(), "https://bitbucket.org/acme/billing")
	if err == nil || !strings.Contains(err.Error(), "not a GitHub repository URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}
