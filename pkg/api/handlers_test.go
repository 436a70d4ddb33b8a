package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gittimeline/pkg/auth"
	github "gittimeline/pkg/providers/github"
	"gittimeline/pkg/storage"
)

type fakeRepoStore struct {
	byID map[uint64]storage.RepoRecord
}

func (s *fakeRepoStore) GetByName(_ context.Context, name string) (*storage.RepoRecord, error) {
	for _, record := range s.byID {
		if record.Name == name {
			clone := record
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeRepoStore) Insert(_ context.Context, record storage.RepoRecord) (*storage.RepoRecord, error) {
	record.ID = uint64(len(s.byID) + 1)
	s.byID[record.ID] = record
	clone := record
	return &clone, nil
}

func (s *fakeRepoStore) ListByIDs(_ context.Context, ids []uint64) ([]storage.RepoRecord, error) {
	var out []storage.RepoRecord
	for _, id := range ids {
		if record, ok := s.byID[id]; ok {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeRepoStore) Close() error { return nil }

type fakeEventStore struct {
	rows   map[uint64]storage.EventRecord
	nextID uint64
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{rows: map[uint64]storage.EventRecord{}}
}

func (s *fakeEventStore) Insert(_ context.Context, record storage.EventRecord) (*storage.EventRecord, error) {
	s.nextID++
	record.ID = s.nextID
	s.rows[record.ID] = record
	clone := record
	return &clone, nil
}

func (s *fakeEventStore) GetByOccurrence(_ context.Context, _ uint64, _, _ string) (*storage.EventRecord, error) {
	return nil, storage.ErrNotFound
}

func (s *fakeEventStore) Get(_ context.Context, id uint64) (*storage.EventRecord, error) {
	if record, ok := s.rows[id]; ok {
		clone := record
		return &clone, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeEventStore) List(_ context.Context, filter storage.EventFilter) ([]storage.EventRecord, error) {
	var out []storage.EventRecord
	for _, record := range s.rows {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Type != "" && record.Type != filter.Type {
			continue
		}
		if filter.RepoID != 0 && record.RepoID != filter.RepoID {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *fakeEventStore) Update(_ context.Context, id uint64, patch storage.EventPatch) (*storage.EventRecord, error) {
	record, ok := s.rows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if patch.Title != nil {
		record.Title = *patch.Title
	}
	if patch.Summary != nil {
		record.Summary = *patch.Summary
	}
	if patch.Status != nil {
		record.Status = *patch.Status
	}
	if patch.Pinned != nil {
		record.Pinned = *patch.Pinned
	}
	if patch.Tags != nil {
		record.Tags = *patch.Tags
	}
	s.rows[id] = record
	clone := record
	return &clone, nil
}

func (s *fakeEventStore) Delete(_ context.Context, id uint64) error {
	if _, ok := s.rows[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *fakeEventStore) ListRepoIDs(_ context.Context) ([]uint64, error) {
	seen := map[uint64]bool{}
	var ids []uint64
	for _, record := range s.rows {
		if !seen[record.RepoID] {
			seen[record.RepoID] = true
			ids = append(ids, record.RepoID)
		}
	}
	return ids, nil
}

func (s *fakeEventStore) Close() error { return nil }

type fakeEnricher struct {
	detail *github.Detail
	called bool
}

func (f *fakeEnricher) Enrich(_ context.Context, _ string) *github.Detail {
	f.called = true
	return f.detail
}

func seedStores() (*fakeRepoStore, *fakeEventStore) {
	repos := &fakeRepoStore{byID: map[uint64]storage.RepoRecord{
		1: {ID: 1, Name: "octo/widgets", URL: "https://github.com/octo/widgets"},
	}}
	events := newFakeEventStore()
	events.Insert(context.Background(), storage.EventRecord{
		RepoID: 1, Type: "commit", Title: "fix: null check",
		SourceURL: "https://github.com/octo/widgets/compare/a...b", Status: "approved",
	})
	events.Insert(context.Background(), storage.EventRecord{
		RepoID: 1, Type: "release", Title: "Release v1.0.0: v1.0.0",
		SourceURL: "https://github.com/octo/widgets/releases/tag/v1.0.0", Status: "pending",
	})
	return repos, events
}

// TestLoginHandler tests the password-for-token exchange endpoint.
func TestLoginHandler(t *testing.T) {
	handler := &LoginHandler{Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"hunter2"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil || body["token"] == "" {
		t.Fatalf("expected token, got %s", recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"wrong"}`)))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

// TestEventsHandlerDefaultsToApproved tests that an anonymous listing only
// sees approved events, with repositories attached.
func TestEventsHandlerDefaultsToApproved(t *testing.T) {
	repos, events := seedStores()
	handler := &EventsHandler{Events: events, Repos: repos, Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var records []storage.EventRecord
	if err := json.Unmarshal(recorder.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Status != "approved" {
		t.Fatalf("expected only the approved event, got %+v", records)
	}
	if records[0].Repo == nil || records[0].Repo.Name != "octo/widgets" {
		t.Fatalf("expected repo attached, got %+v", records[0].Repo)
	}
}

// TestEventsHandlerPendingRequiresAdmin tests the admin gate on non-approved
// status filters.
func TestEventsHandlerPendingRequiresAdmin(t *testing.T) {
	repos, events := seedStores()
	handler := &EventsHandler{Events: events, Repos: repos, Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/events?status=pending", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", recorder.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/events?status=pending", nil)
	req.Header.Set("Authorization", "Bearer hunter2")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 with credentials, got %d", recorder.Code)
	}
	var records []storage.EventRecord
	if err := json.Unmarshal(recorder.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Status != "pending" {
		t.Fatalf("expected the pending event, got %+v", records)
	}
}

// TestEventsHandlerInvalidRepoFilter tests rejection of a non-numeric repo
// filter.
func TestEventsHandlerInvalidRepoFilter(t *testing.T) {
	repos, events := seedStores()
	handler := &EventsHandler{Events: events, Repos: repos, Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/events?repo=widgets", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

// TestEventHandlerPatch tests admin moderation of a single event.
func TestEventHandlerPatch(t *testing.T) {
	_, events := seedStores()
	handler := &EventHandler{Events: events, Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	patch := func(id, body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/events/"+id, strings.NewReader(body))
		req.SetPathValue("id", id)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder
	}

	if recorder := patch("2", `{"status":"approved"}`, ""); recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", recorder.Code)
	}
	if recorder := patch("2", `{"status":"shipped"}`, "hunter2"); recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", recorder.Code)
	}
	if recorder := patch("99", `{"status":"approved"}`, "hunter2"); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing event, got %d", recorder.Code)
	}

	recorder := patch("2", `{"status":"approved","pinned":true}`, "hunter2")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", recorder.Code, recorder.Body.String())
	}
	var updated storage.EventRecord
	if err := json.Unmarshal(recorder.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Status != "approved" || !updated.Pinned {
		t.Fatalf("expected patch applied, got %+v", updated)
	}
}

// TestEventHandlerDelete tests admin deletion, including the second-delete 404.
func TestEventHandlerDelete(t *testing.T) {
	_, events := seedStores()
	handler := &EventHandler{Events: events, Auth: auth.NewVerifier("hunter2"), Logger: log.Default()}

	del := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/events/"+id, nil)
		req.SetPathValue("id", id)
		req.Header.Set("Authorization", "Bearer hunter2")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder
	}

	if recorder := del("1"); recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder := del("1"); recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", recorder.Code)
	}
}

// TestEventDetailsHandler tests the enriched single-event endpoint.
func TestEventDetailsHandler(t *testing.T) {
	repos, events := seedStores()
	enricher := &fakeEnricher{detail: &github.Detail{Stats: github.DetailStats{TotalCommits: 2}}}
	handler := &EventDetailsHandler{Events: events, Repos: repos, Enricher: enricher, Logger: log.Default()}

	req := httptest.NewRequest(http.MethodGet, "/api/events/1/details", nil)
	req.SetPathValue("id", "1")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !enricher.called {
		t.Fatalf("expected enricher to run")
	}
	var body struct {
		Event   storage.EventRecord `json:"event"`
		Details *github.Detail      `json:"details"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Event.ID != 1 || body.Details == nil || body.Details.Stats.TotalCommits != 2 {
		t.Fatalf("unexpected response: %s", recorder.Body.String())
	}
}

// TestEventDetailsHandlerDegradesToNull tests that a failed enrichment still
// returns the event with a null details field.
func TestEventDetailsHandlerDegradesToNull(t *testing.T) {
	repos, events := seedStores()
	handler := &EventDetailsHandler{Events: events, Repos: repos, Enricher: &fakeEnricher{}, Logger: log.Default()}

	req := httptest.NewRequest(http.MethodGet, "/api/events/1/details", nil)
	req.SetPathValue("id", "1")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"details":null`) {
		t.Fatalf("expected null details, got %s", recorder.Body.String())
	}
}

// TestEventDetailsHandlerNotFound tests the 404 path.
func TestEventDetailsHandlerNotFound(t *testing.T) {
	repos, events := seedStores()
	handler := &EventDetailsHandler{Events: events, Repos: repos, Enricher: &fakeEnricher{}, Logger: log.Default()}

	req := httptest.NewRequest(http.MethodGet, "/api/events/99/details", nil)
	req.SetPathValue("id", "99")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

// TestReposHandler tests the repository listing, including the empty case.
func TestReposHandler(t *testing.T) {
	repos, events := seedStores()
	handler := &ReposHandler{Events: events, Repos: repos, Logger: log.Default()}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/repos", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var records []storage.RepoRecord
	if err := json.Unmarshal(recorder.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].Name != "octo/widgets" {
		t.Fatalf("unexpected repos: %+v", records)
	}

	empty := &ReposHandler{Events: newFakeEventStore(), Repos: repos, Logger: log.Default()}
	recorder = httptest.NewRecorder()
	empty.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/repos", nil))
	if strings.TrimSpace(recorder.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", recorder.Body.String())
	}
}
