package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gittimeline/internal"
	"gittimeline/pkg/storage"
)

// ErrMalformedPayload marks a delivery whose body could not be parsed or
// is missing its repository block. Handlers map it to a 4xx rejection.
var ErrMalformedPayload = errors.New("ingest: malformed payload")

// OutcomeStatus classifies what a delivery did.
type OutcomeStatus string

const (
	// OutcomeCreated means a new event row was written.
	OutcomeCreated OutcomeStatus = "created"
	// OutcomeDuplicate means the occurrence was already stored; Event
	// references the existing row.
	OutcomeDuplicate OutcomeStatus = "duplicate"
	// OutcomeUnsupported means the family/action is not surfaced on the
	// timeline. Accepted without a write so the sender does not retry.
	OutcomeUnsupported OutcomeStatus = "unsupported"
)

// Outcome is the result of ingesting one webhook delivery.
type Outcome struct {
	Status OutcomeStatus
	Event  *storage.EventRecord
}

// Coordinator runs the ingestion pipeline end to end: dedup key derivation,
// normalization, repository resolution, and deduplicated insert. It is the
// sole writer of new events from webhook traffic.
type Coordinator struct {
	repos      storage.RepoStore
	events     storage.EventStore
	moderation *internal.ModerationEngine
	logger     *log.Logger
	now        func() time.Time
}

// NewCoordinator creates a Coordinator. moderation may be nil.
func NewCoordinator(repos storage.RepoStore, events storage.EventStore, moderation *internal.ModerationEngine, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		repos:      repos,
		events:     events,
		moderation: moderation,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest processes one webhook delivery. Deliveries are independent units
// of work; the only cross-delivery coordination is the storage layer's
// uniqueness constraint, which this method treats as authoritative. The
// pre-insert existence check is just a fast path.
func (c *Coordinator) Ingest(ctx context.Context, family, deliveryID string, rawPayload []byte) (Outcome, error) {
	// Derived before normalization: the key uses raw identity fields
	// (e.g. the PR id and action) that the normalized shape drops.
	dedupKey := DedupKey(family, rawPayload)

	normalized, err := Normalize(family, rawPayload, c.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if normalized == nil {
		return Outcome{Status: OutcomeUnsupported}, nil
	}

	if c.moderation != nil {
		decision := c.moderation.Decide(family, rawPayload)
		if decision.Status != "" {
			normalized.Status = decision.Status
		}
		if decision.Pinned != nil {
			normalized.Pinned = *decision.Pinned
		}
	}

	repoID, err := c.resolveRepo(ctx, rawPayload)
	if err != nil {
		return Outcome{}, err
	}

	if dedupKey != "" {
		existing, err := c.events.GetByOccurrence(ctx, repoID, dedupKey, normalized.Type)
		if err == nil {
			return Outcome{Status: OutcomeDuplicate, Event: existing}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return Outcome{}, fmt.Errorf("dedup pre-check repo=%d key=%s: %w", repoID, dedupKey, err)
		}
	}

	record := storage.EventRecord{
		RepoID:           repoID,
		Type:             normalized.Type,
		Title:            normalized.Title,
		Summary:          normalized.Summary,
		Body:             normalized.Body,
		Timestamp:        normalized.Timestamp,
		SourceURL:        normalized.SourceURL,
		GitHubDeliveryID: deliveryID,
		Tags:             normalized.Tags,
		Status:           normalized.Status,
		Pinned:           normalized.Pinned,
	}
	if dedupKey != "" {
		record.GitHubEventID = &dedupKey
	}

	created, err := c.events.Insert(ctx, record)
	if errors.Is(err, storage.ErrConflict) && dedupKey != "" {
		// A concurrent delivery of the same occurrence won the insert
		// race between the pre-check and our write. Its row is the one
		// to reference.
		existing, lookupErr := c.events.GetByOccurrence(ctx, repoID, dedupKey, normalized.Type)
		if lookupErr != nil {
			return Outcome{}, fmt.Errorf("conflict re-read repo=%d key=%s: %w", repoID, dedupKey, lookupErr)
		}
		c.logger.Printf("duplicate delivery resolved via constraint repo=%d key=%s type=%s", repoID, dedupKey, normalized.Type)
		return Outcome{Status: OutcomeDuplicate, Event: existing}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("insert event repo=%d key=%s: %w", repoID, dedupKey, err)
	}
	return Outcome{Status: OutcomeCreated, Event: created}, nil
}

// resolveRepo finds or creates the repository referenced by the payload.
// Concurrent first-time resolution of the same repository is settled by the
// name uniqueness constraint: the loser re-reads the winner's row.
func (c *Coordinator) resolveRepo(ctx context.Context, rawPayload []byte) (uint64, error) {
	var payload struct {
		Repository struct {
			FullName string `json:"full_name"`
			HTMLURL  string `json:"html_url"`
			Owner    struct {
				AvatarURL string `json:"avatar_url"`
			} `json:"owner"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	repo := payload.Repository
	if repo.FullName == "" {
		return 0, fmt.Errorf("%w: missing repository block", ErrMalformedPayload)
	}

	existing, err := c.repos.GetByName(ctx, repo.FullName)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("lookup repo %q: %w", repo.FullName, err)
	}

	created, err := c.repos.Insert(ctx, storage.RepoRecord{
		Name: repo.FullName,
		URL:  repo.HTMLURL,
		Icon: repo.Owner.AvatarURL,
	})
	if errors.Is(err, storage.ErrConflict) {
		winner, lookupErr := c.repos.GetByName(ctx, repo.FullName)
		if lookupErr != nil {
			return 0, fmt.Errorf("repo conflict re-read %q: %w", repo.FullName, lookupErr)
		}
		return winner.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("create repo %q: %w", repo.FullName, err)
	}
	return created.ID, nil
}
