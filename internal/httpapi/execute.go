package httpapi

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/collabhub/server/internal/apperr"
	"github.com/collabhub/server/internal/execqueue"
	"github.com/collabhub/server/internal/telemetry"
)

type executeRequest struct {
	DocumentID string `json:"documentId,omitempty"`
	Language   string `json:"language"`
	Code       string `json:"code"`
}

type executeResponse struct {
	JobID string `json:"jobId"`
}

type executeResultResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exitCode"`
}

// exploitPatterns is a coarse, non-exhaustive filter for obvious
// sandbox-escape attempts (spec §4.10); it is defense-in-depth on top
// of the sandbox's own isolation, not a substitute for it.
var exploitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ptrace`),
	regexp.MustCompile(`(?i)/proc/self/exe`),
	regexp.MustCompile(`(?i)docker\.sock`),
	regexp.MustCompile(`(?i)/var/run/containerd`),
}

// handleExecute handles POST /api/execute: validates input, enforces
// the per-user rate limit, and enqueues a job (spec §4.9, §4.10).
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.Validation, "invalid request body"))
		return
	}

	if err := s.validateExecuteRequest(req); err != nil {
		writeError(w, err)
		return
	}

	userID := UserIDFromContext(r.Context())

	result, err := s.limiter.Check(r.Context(), userID, "execute")
	if err != nil {
		wrapped := apperr.Wrap(apperr.Transient, "rate limit check failed", err)
		if e, ok := wrapped.(*apperr.Error); ok {
			e.RetryAfter = s.limiter.Window()
		}

		writeError(w, wrapped)

		return
	}

	if !result.Allowed {
		telemetry.RateLimitDeniedTotal.Inc()

		rlErr := apperr.New(apperr.RateLimited, "execution rate limit exceeded")
		rlErr.RetryAfter = time.Until(result.ResetAt)

		writeError(w, rlErr)

		return
	}

	job := execqueue.Job{
		OwnerID:    userID,
		DocumentID: req.DocumentID,
		Language:   req.Language,
		Code:       []byte(req.Code),
		Timeout:    s.execCfg.DefaultTimeout,
	}

	jobID, err := s.queue.Enqueue(r.Context(), job)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, executeResponse{JobID: jobID})
}

func (s *Server) validateExecuteRequest(req executeRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return apperr.New(apperr.Validation, "code is required")
	}

	if s.execCfg.MaxCodeBytes > 0 && len(req.Code) > s.execCfg.MaxCodeBytes {
		return apperr.New(apperr.Validation, "code exceeds maximum size")
	}

	if !s.execCfg.SupportedLangs[req.Language] {
		return apperr.New(apperr.Validation, "unsupported language")
	}

	for _, p := range exploitPatterns {
		if p.MatchString(req.Code) {
			return apperr.New(apperr.Validation, "code references a disallowed system resource")
		}
	}

	return nil
}

// handleExecuteResult handles GET /api/execute/{jobId}, polling for a
// job's outcome (spec §4.10 result retrieval).
func (s *Server) handleExecuteResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/execute/")
	if jobID == "" {
		writeError(w, apperr.New(apperr.Validation, "job id is required"))
		return
	}

	status, result, err := s.queue.GetResult(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := executeResultResponse{Status: string(status)}
	if result != nil {
		resp.Reason = result.Reason
		resp.Stdout = result.Stdout
		resp.Stderr = result.Stderr
		resp.ExitCode = result.ExitCode
	}

	writeJSON(w, http.StatusOK, resp)
}
