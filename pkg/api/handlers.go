package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gittimeline/internal"
	"gittimeline/pkg/auth"
	"gittimeline/pkg/ingest"
	github "gittimeline/pkg/providers/github"
	"gittimeline/pkg/storage"
)

// Enricher fetches best-effort detail for a stored event.
type Enricher interface {
	Enrich(ctx context.Context, sourceURL string) *github.Detail
}

// LoginHandler exchanges the admin password for an API token.
type LoginHandler struct {
	Auth   *auth.Verifier
	Logger *log.Logger
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	token, ok := h.Auth.Token(body.Password)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// EventsHandler lists timeline events with optional repo/type/status
// filters. Querying any status other than approved is an admin operation.
type EventsHandler struct {
	Events storage.EventStore
	Repos  storage.RepoStore
	Auth   *auth.Verifier
	Logger *log.Logger
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("api_events")

	status := r.URL.Query().Get("status")
	if status == "" {
		status = ingest.StatusApproved
	}
	if status != ingest.StatusApproved && !h.Auth.VerifyRequest(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin authentication required"})
		return
	}

	filter := storage.EventFilter{Status: status, Type: r.URL.Query().Get("type")}
	if repoParam := r.URL.Query().Get("repo"); repoParam != "" {
		repoID, err := strconv.ParseUint(repoParam, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid repo filter"})
			return
		}
		filter.RepoID = repoID
	}

	records, err := h.Events.List(r.Context(), filter)
	if err != nil {
		internal.IncStorageError("list_events")
		h.Logger.Printf("list events failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch events"})
		return
	}
	if err := attachRepos(r.Context(), h.Repos, records); err != nil {
		internal.IncStorageError("list_events")
		h.Logger.Printf("attach repos failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch events"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// EventHandler updates or deletes a single event. Both are admin
// operations; the webhook path never mutates an event after creation.
type EventHandler struct {
	Events storage.EventStore
	Auth   *auth.Verifier
	Logger *log.Logger
}

func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.Auth.VerifyRequest(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin authentication required"})
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var patch storage.EventPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if patch.Status != nil {
			switch *patch.Status {
			case ingest.StatusPending, ingest.StatusApproved, ingest.StatusRejected:
			default:
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
				return
			}
		}
		updated, err := h.Events.Update(r.Context(), id, patch)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
			return
		}
		if err != nil {
			internal.IncStorageError("update_event")
			h.Logger.Printf("update event %d failed: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update event"})
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		err := h.Events.Delete(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
			return
		}
		if err != nil {
			internal.IncStorageError("delete_event")
			h.Logger.Printf("delete event %d failed: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete event"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// EventDetailsHandler returns one event together with its best-effort
// upstream detail. Enrichment failures degrade to a null details field,
// never an error status.
type EventDetailsHandler struct {
	Events   storage.EventStore
	Repos    storage.RepoStore
	Enricher Enricher
	Logger   *log.Logger
}

func (h *EventDetailsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("api_event_details")
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid event id"})
		return
	}

	record, err := h.Events.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	if err != nil {
		internal.IncStorageError("get_event")
		h.Logger.Printf("get event %d failed: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch event"})
		return
	}
	events := []storage.EventRecord{*record}
	if err := attachRepos(r.Context(), h.Repos, events); err != nil {
		h.Logger.Printf("attach repo for event %d failed: %v", id, err)
	}

	var details *github.Detail
	if h.Enricher != nil {
		details = h.Enricher.Enrich(r.Context(), record.SourceURL)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":   events[0],
		"details": details,
	})
}

// ReposHandler lists the repositories that have at least one event.
type ReposHandler struct {
	Events storage.EventStore
	Repos  storage.RepoStore
	Logger *log.Logger
}

func (h *ReposHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	internal.IncRequest("api_repos")
	ids, err := h.Events.ListRepoIDs(r.Context())
	if err != nil {
		internal.IncStorageError("list_repos")
		h.Logger.Printf("list repo ids failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch repositories"})
		return
	}
	if len(ids) == 0 {
		writeJSON(w, http.StatusOK, []storage.RepoRecord{})
		return
	}
	records, err := h.Repos.ListByIDs(r.Context(), ids)
	if err != nil {
		internal.IncStorageError("list_repos")
		h.Logger.Printf("list repos failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch repositories"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func attachRepos(ctx context.Context, repos storage.RepoStore, records []storage.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	seen := map[uint64]bool{}
	ids := make([]uint64, 0, len(records))
	for _, record := range records {
		if !seen[record.RepoID] {
			seen[record.RepoID] = true
			ids = append(ids, record.RepoID)
		}
	}
	found, err := repos.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[uint64]storage.RepoRecord, len(found))
	for _, repo := range found {
		byID[repo.ID] = repo
	}
	for i := range records {
		if repo, ok := byID[records[i].RepoID]; ok {
			clone := repo
			records[i].Repo = &clone
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
