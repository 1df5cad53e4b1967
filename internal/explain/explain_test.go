package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

func TestNewDefaultsModel(t *testing.T) {
	if a := New("sk-test", ""); a.model != defaultModel {
		t.Fatalf("expected default model, got %q", a.model)
	}
	if a := New("sk-test", "gpt-4o"); a.model != "gpt-4o" {
		t.Fatalf("expected explicit model, got %q", a.model)
	}
}

func TestUserPromptGroupsByFile(t *testing.T) {
	violations := []analysis.Violation{
		{FilePath: "src/Zeta.java", LineNumber: 3, Severity: "WARNING", Message: "tab character"},
		{FilePath: "src/Alpha.java", LineNumber: 10, Severity: "ERROR", Message: "missing javadoc"},
		{FilePath: "src/Zeta.java", LineNumber: 8, Severity: "INFO", Message: "redundant import"},
	}

	prompt := userPrompt("https://github.com/acme/app", violations)

	if !strings.HasPrefix(prompt, "Checkstyle results for https://github.com/acme/app (3 violations):") {
		t.Fatalf("unexpected header: %q", prompt)
	}
	alpha := strings.Index(prompt, "src/Alpha.java:")
	zeta := strings.Index(prompt, "src/Zeta.java:")
	if alpha == -1 || zeta == -1 || alpha > zeta {
		t.Fatalf("files not grouped in sorted order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "  line 10 [ERROR] missing javadoc") {
		t.Fatalf("violation row missing:\n%s", prompt)
	}
	if strings.Contains(prompt, "omitted") {
		t.Fatalf("nothing should be omitted for a small run:\n%s", prompt)
	}
}

func TestUserPromptCapsLargeRuns(t *testing.T) {
	violations := make([]analysis.Violation, 150)
	for i := range violations {
		violations[i] = analysis.Violation{
			FilePath:   fmt.Sprintf("src/File%03d.java", i/10),
			LineNumber: i,
			Severity:   "WARNING",
			Message:    "long line",
		}
	}

	prompt := userPrompt("repo", violations)
	if !strings.Contains(prompt, "(and 50 more violations omitted)") {
		t.Fatalf("expected cap notice:\n%s", prompt[len(prompt)-200:])
	}
}

func TestExplainRejectsEmptyInput(t *testing.T) {
	a := New("sk-test", "")
	if _, err := a.Explain(context.Background(), "repo", nil); err == nil {
		t.Fatal("expected error for empty violations")
	}
}

func testAdvisor(t *testing.T, handler http.HandlerFunc) *Advisor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	return &Advisor{client: openai.NewClientWithConfig(cfg), model: defaultModel}
}

func TestExplain(t *testing.T) {
	a := testAdvisor(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if !strings.Contains(req.Messages[1].Content, "line 3 [WARNING] tab character") {
			t.Errorf("violations missing from prompt: %q", req.Messages[1].Content)
		}
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Fix the tabs first."}}]}`)
	})

	advice, err := a.Explain(context.Background(), "session 41", []analysis.Violation{
		{FilePath: "Main.java", LineNumber: 3, Severity: "WARNING", Message: "tab character"},
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if advice != "Fix the tabs first." {
		t.Fatalf("unexpected advice: %q", advice)
	}
}

func TestExplainWithoutChoices(t *testing.T) {
	a := testAdvisor(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})

	_, err := a.Explain(context.Background(), "session 41", []analysis.Violation{{FilePath: "A.java"}})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("unexpected error: %v", err)
	}
}
