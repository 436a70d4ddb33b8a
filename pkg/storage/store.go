package storage

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when an insert violates a uniqueness constraint.
// Callers rely on it to distinguish the anticipated duplicate-row race from
// other storage failures.
var ErrConflict = errors.New("storage: uniqueness conflict")

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("storage: not found")

// RepoRecord stores one tracked repository.
type RepoRecord struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventRecord stores one normalized activity event.
//
// GitHubEventID is the family-specific occurrence key; it is nil when no
// identity material was available in the delivery, and rows with a nil key
// are exempt from the occurrence uniqueness constraint.
type EventRecord struct {
	ID               uint64      `json:"id"`
	RepoID           uint64      `json:"repo_id"`
	Repo             *RepoRecord `json:"repo,omitempty"`
	Type             string      `json:"type"`
	Title            string      `json:"title"`
	Summary          string      `json:"summary"`
	Body             string      `json:"body,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
	SourceURL        string      `json:"source_url"`
	GitHubDeliveryID string      `json:"github_delivery_id,omitempty"`
	GitHubEventID    *string     `json:"github_event_id,omitempty"`
	Tags             []string    `json:"tags"`
	Status           string      `json:"status"`
	Pinned           bool        `json:"pinned"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// EventFilter selects event rows. Zero values mean "any".
type EventFilter struct {
	RepoID uint64
	Type   string
	Status string
}

// EventPatch carries a partial event update. Nil fields are left untouched.
type EventPatch struct {
	Title   *string   `json:"title"`
	Summary *string   `json:"summary"`
	Status  *string   `json:"status"`
	Pinned  *bool     `json:"pinned"`
	Tags    *[]string `json:"tags"`
}

// RepoStore defines persistence for tracked repositories.
type RepoStore interface {
	GetByName(ctx context.Context, name string) (*RepoRecord, error)
	Insert(ctx context.Context, record RepoRecord) (*RepoRecord, error)
	ListByIDs(ctx context.Context, ids []uint64) ([]RepoRecord, error)
	Close() error
}

// EventStore defines persistence for activity events.
// Insert returns ErrConflict when the (repo, occurrence key, type)
// uniqueness constraint is violated.
type EventStore interface {
	Insert(ctx context.Context, record EventRecord) (*EventRecord, error)
	GetByOccurrence(ctx context.Context, repoID uint64, eventID string, eventType string) (*EventRecord, error)
	Get(ctx context.Context, id uint64) (*EventRecord, error)
	List(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	Update(ctx context.Context, id uint64, patch EventPatch) (*EventRecord, error)
	Delete(ctx context.Context, id uint64) error
	ListRepoIDs(ctx context.Context) ([]uint64, error)
	Close() error
}
