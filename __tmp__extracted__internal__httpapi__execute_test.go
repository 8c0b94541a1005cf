package httpapi

import (
	"strings"
	"testing"

	"github.com/collabhub/server/internal/apperr"
)

func testServer() *Server {
	return New(Config{
		Exec: ExecConfig{
			MaxCodeBytes:   100,
			SupportedLangs: map[string]bool{"python": true, "node": true},
		},
	})
}

func TestValidateExecuteRequest_RejectsEmptyCode(t *testing.T) {
	t.Parallel()

	s := testServer()

	err := s.validateExecuteRequest(executeRequest{Language: "python", Code: "   "})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected Validation for blank code, got %v", err)
	}
}

func TestValidateExecuteRequest_RejectsOversizedCode(t *testing.T) {
	t.Parallel()

	s := testServer()

	err := s.validateExecuteRequest(executeRequest{Language: "python", Code: strings.Repeat("x", 200)})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected Validation for oversized code, got %v", err)
	}
}

func TestValidateExecuteRequest_RejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	s := testServer()

	err := s.validateExecuteRequest(executeRequest{Language: "ruby", Code: "puts 1"})
	if !apperr.Is(err, apperr.Validation) {
		t.Fatalf("expected Validation for an unsupported language, got %v", err)
	}
}

func TestValidateExecuteRequest_RejectsExploitPatterns(t *testing.T) {
	t.Parallel()

	s := testServer()

	cases := []string{
		"os.ptrace(0)",
		"open('/proc/self/exe')",
		"connect('/var/run/docker.sock')",
		"read('/var/run/containerd/x')",
	}

	for _, code := range cases {
		err := s.validateExecuteRequest(executeRequest{Language: "python", Code: code})
		if !apperr.Is(err, apperr.Validation) {
			t.Errorf("expected code %q referencing a disallowed resource to be rejected, got %v", code, err)
		}
	}
}

func TestValidateExecuteRequest_AcceptsOrdinaryCode(t *testing.T) {
	t.Parallel()

	s := testServer()

	err := s.validateExecuteRequest(executeRequest{Language: "node", Code: "console.log('hi')"})
	if err != nil {
		t.Errorf("expected ordinary code to validate cleanly, got %v", err)
	}
}


