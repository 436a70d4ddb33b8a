package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"gittimeline/internal"
	"gittimeline/pkg/ingest"

	"github.com/go-playground/webhooks/v6/github"
)

// Ingestor processes a verified webhook delivery.
type Ingestor interface {
	Ingest(ctx context.Context, family, deliveryID string, rawPayload []byte) (ingest.Outcome, error)
}

// GitHubHandler receives GitHub webhook deliveries, verifies their
// signature, and hands accepted payloads to the ingestion coordinator.
type GitHubHandler struct {
	hook     *github.Webhook
	secret   string
	ingestor Ingestor
	logger   *log.Logger
	maxBody  int64
}

// Only the families the timeline surfaces, plus ping for endpoint tests.
var githubEvents = []github.Event{
	github.PushEvent,
	github.ReleaseEvent,
	github.PullRequestEvent,
	github.IssuesEvent,
	github.PingEvent,
}

// NewGitHubHandler creates a GitHubHandler. An empty secret disables
// signature verification; that is an operational escape hatch, not a
// recommended setup.
func NewGitHubHandler(secret string, ingestor Ingestor, logger *log.Logger, maxBody int64) (*GitHubHandler, error) {
	// Verification happens against the raw body before parsing, so the
	// hook itself is constructed without a secret.
	hook, err := github.New()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GitHubHandler{
		hook:     hook,
		secret:   secret,
		ingestor: ingestor,
		logger:   logger,
		maxBody:  maxBody,
	}, nil
}

// ServeHTTP handles one webhook delivery.
func (h *GitHubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	internal.IncRequest("github")
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	reqID := deliveryID
	if reqID == "" {
		reqID = randomRequestID()
	}
	w.Header().Set("X-Request-Id", reqID)
	logger := internal.WithRequestID(h.logger, reqID)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(rawBody))

	if h.secret != "" {
		if !VerifySignature(h.secret, rawBody, r.Header.Get("X-Hub-Signature-256")) {
			internal.IncSignatureFailure("github")
			logger.Printf("github signature verification failed")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			return
		}
	}

	payload, err := h.hook.Parse(r, githubEvents...)
	if err != nil {
		if errors.Is(err, github.ErrEventNotFound) {
			// Family the timeline never surfaces. Accept it so the
			// sender stops retrying.
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		internal.IncParseError("github")
		logger.Printf("github parse failed: %v", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
		return
	}

	if _, ok := payload.(github.PingPayload); ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ping", "message": "webhook configured"})
		return
	}

	family := r.Header.Get("X-GitHub-Event")
	outcome, err := h.ingestor.Ingest(r.Context(), family, deliveryID, rawBody)
	if err != nil {
		if errors.Is(err, ingest.ErrMalformedPayload) {
			internal.IncParseError("github")
			logger.Printf("github reject: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed payload"})
			return
		}
		internal.IncStorageError("ingest")
		logger.Printf("github ingest failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
		return
	}

	internal.IncIngestOutcome(string(outcome.Status))
	logger.Printf("event family=%s outcome=%s", family, outcome.Status)
	response := map[string]interface{}{"status": string(outcome.Status)}
	if outcome.Event != nil {
		response["event"] = outcome.Event
	}
	writeJSON(w, http.StatusOK, response)
}

// VerifySignature checks a `sha256=<hex>` signature header against the
// HMAC-SHA256 of the raw request body keyed by secret.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}
