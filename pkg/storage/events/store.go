package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gittimeline/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config mirrors the storage configuration for the events table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.EventStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

// github_event_id is nullable so deliveries without identity material can
// insert unconditionally; SQL unique indexes do not collide on NULL.
type row struct {
	ID               uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RepoID           uint64    `gorm:"column:repo_id;not null;index;uniqueIndex:idx_event_occurrence,priority:1"`
	Type             string    `gorm:"column:type;size:32;not null;uniqueIndex:idx_event_occurrence,priority:3"`
	Title            string    `gorm:"column:title;size:512;not null"`
	Summary          string    `gorm:"column:summary;size:1024"`
	Body             string    `gorm:"column:body;type:text"`
	Timestamp        time.Time `gorm:"column:timestamp;not null;index"`
	SourceURL        string    `gorm:"column:source_url;size:512"`
	GitHubDeliveryID string    `gorm:"column:github_delivery_id;size:128"`
	GitHubEventID    *string   `gorm:"column:github_event_id;size:255;uniqueIndex:idx_event_occurrence,priority:2"`
	TagsJSON         string    `gorm:"column:tags;type:text"`
	Status           string    `gorm:"column:status;size:16;not null;index"`
	Pinned           bool      `gorm:"column:pinned;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed events store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		return nil, errors.New("storage driver is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "events"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Insert creates a new event row. A violation of the occurrence uniqueness
// index surfaces as storage.ErrConflict.
func (s *Store) Insert(ctx context.Context, record storage.EventRecord) (*storage.EventRecord, error) {
	data, err := toRow(record)
	if err != nil {
		return nil, err
	}
	err = s.tableDB().WithContext(ctx).Create(&data).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("insert event repo=%d key=%v type=%s: %w",
			record.RepoID, deref(record.GitHubEventID), record.Type, storage.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	created := fromRow(data)
	return &created, nil
}

// GetByOccurrence fetches the event identified by the occurrence triple.
func (s *Store) GetByOccurrence(ctx context.Context, repoID uint64, eventID string, eventType string) (*storage.EventRecord, error) {
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("repo_id = ? AND github_event_id = ? AND type = ?", repoID, eventID, eventType).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// Get fetches an event by primary key.
func (s *Store) Get(ctx context.Context, id uint64) (*storage.EventRecord, error) {
	var data row
	err := s.tableDB().WithContext(ctx).Where("id = ?", id).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// List fetches events matching the filter, pinned first, newest first.
func (s *Store) List(ctx context.Context, filter storage.EventFilter) ([]storage.EventRecord, error) {
	query := s.tableDB().WithContext(ctx)
	if filter.RepoID != 0 {
		query = query.Where("repo_id = ?", filter.RepoID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var data []row
	err := query.Order("pinned DESC").Order("timestamp DESC").Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.EventRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

// Update applies a partial update and returns the updated row.
func (s *Store) Update(ctx context.Context, id uint64, patch storage.EventPatch) (*storage.EventRecord, error) {
	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Summary != nil {
		updates["summary"] = *patch.Summary
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Pinned != nil {
		updates["pinned"] = *patch.Pinned
	}
	if patch.Tags != nil {
		encoded, err := json.Marshal(*patch.Tags)
		if err != nil {
			return nil, err
		}
		updates["tags"] = string(encoded)
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		result := s.tableDB().WithContext(ctx).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, storage.ErrNotFound
		}
	}
	return s.Get(ctx, id)
}

// Delete removes an event by primary key.
func (s *Store) Delete(ctx context.Context, id uint64) error {
	result := s.tableDB().WithContext(ctx).Where("id = ?", id).Delete(&row{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListRepoIDs returns the distinct repo IDs that have at least one event.
func (s *Store) ListRepoIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := s.tableDB().WithContext(ctx).Distinct("repo_id").Pluck("repo_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.EventRecord) (row, error) {
	tags := record.Tags
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:               record.ID,
		RepoID:           record.RepoID,
		Type:             record.Type,
		Title:            record.Title,
		Summary:          record.Summary,
		Body:             record.Body,
		Timestamp:        record.Timestamp,
		SourceURL:        record.SourceURL,
		GitHubDeliveryID: record.GitHubDeliveryID,
		GitHubEventID:    record.GitHubEventID,
		TagsJSON:         string(encoded),
		Status:           record.Status,
		Pinned:           record.Pinned,
	}, nil
}

func fromRow(data row) storage.EventRecord {
	var tags []string
	if data.TagsJSON != "" {
		_ = json.Unmarshal([]byte(data.TagsJSON), &tags)
	}
	if tags == nil {
		tags = []string{}
	}
	return storage.EventRecord{
		ID:               data.ID,
		RepoID:           data.RepoID,
		Type:             data.Type,
		Title:            data.Title,
		Summary:          data.Summary,
		Body:             data.Body,
		Timestamp:        data.Timestamp,
		SourceURL:        data.SourceURL,
		GitHubDeliveryID: data.GitHubDeliveryID,
		GitHubEventID:    data.GitHubEventID,
		Tags:             tags,
		Status:           data.Status,
		Pinned:           data.Pinned,
		CreatedAt:        data.CreatedAt,
		UpdatedAt:        data.UpdatedAt,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql", "mariadb":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{TranslateError: true}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
