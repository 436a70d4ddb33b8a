package repos

import (
	"context"
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

// Config mirrors the storage configuration for the repos table.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.RepoStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:255;not null;uniqueIndex:idx_repo_name"`
	URL       string    `gorm:"column:url;size:512"`
	Icon      string    `gorm:"column:icon;size:512"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Open creates a GORM-backed repos store.
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
		table = "repos"
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

// GetByName fetches a repo by its exact display name.
func (s *Store) GetByName(ctx context.Context, name string) (*storage.RepoRecord, error) {
	var data row
	err := s.tableDB().WithContext(ctx).Where("name = ?", name).Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// Insert creates a new repo row and returns it with its generated ID.
// A name collision surfaces as storage.ErrConflict.
func (s *Store) Insert(ctx context.Context, record storage.RepoRecord) (*storage.RepoRecord, error) {
	data := row{
		Name: record.Name,
		URL:  record.URL,
		Icon: record.Icon,
	}
	err := s.tableDB().WithContext(ctx).Create(&data).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("insert repo %q: %w", record.Name, storage.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	created := fromRow(data)
	return &created, nil
}

// ListByIDs fetches the given repos ordered by name.
func (s *Store) ListByIDs(ctx context.Context, ids []uint64) ([]storage.RepoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var data []row
	err := s.tableDB().WithContext(ctx).Where("id IN ?", ids).Order("name").Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.RepoRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func fromRow(data row) storage.RepoRecord {
	return storage.RepoRecord{
		ID:        data.ID,
		Name:      data.Name,
		URL:       data.URL,
		Icon:      data.Icon,
		CreatedAt: data.CreatedAt,
	}
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
