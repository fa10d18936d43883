// Package pipelines stores pipeline trigger configurations with GORM.
package pipelines

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hooktrigger/pkg/storage"
	"hooktrigger/pkg/trigger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config mirrors the storage configuration for the pipelines table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
}

// Store implements storage.PipelineStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID         string                `gorm:"column:id;size:128;primaryKey"`
	Provider   string                `gorm:"column:provider;size:32;not null;index:idx_pipeline_repo,priority:1"`
	Repository string                `gorm:"column:repository;size:255;not null;index:idx_pipeline_repo,priority:2"`
	Enabled    bool                  `gorm:"column:enabled;not null"`
	Trigger    trigger.TriggerConfig `gorm:"column:trigger_config;type:text;serializer:json"`
	Drivers    []string              `gorm:"column:drivers;type:text;serializer:json"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed pipeline store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "pipeline_triggers"
	}
	store := &Store{
		db:    gormDB,
		table: table,
	}
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

// UpsertPipeline inserts or updates a pipeline. The trigger configuration
// is compiled first so broken rules never reach the table.
func (s *Store) UpsertPipeline(ctx context.Context, record storage.PipelineRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if record.ID == "" || record.Provider == "" || record.Repository == "" {
		return errors.New("id, provider and repository are required")
	}
	if _, err := trigger.Compile(record.Trigger); err != nil {
		return fmt.Errorf("pipeline %q: %w", record.ID, err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data := toRow(record)
	return s.tableDB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider", "repository", "enabled", "trigger_config", "drivers", "updated_at"}),
		}).
		Create(&data).Error
}

// DeletePipeline removes a pipeline. Unknown ids are not an error.
func (s *Store) DeletePipeline(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return s.tableDB().WithContext(ctx).Where("id = ?", id).Delete(&row{}).Error
}

// GetPipeline fetches a pipeline by id.
func (s *Store) GetPipeline(ctx context.Context, id string) (*storage.PipelineRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data row
	err := s.tableDB().
		WithContext(ctx).
		Where("id = ?", id).
		Take(&data).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record := fromRow(data)
	return &record, nil
}

// ListPipelines lists the enabled pipelines of a repository.
func (s *Store) ListPipelines(ctx context.Context, provider, repository string) ([]storage.PipelineRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Where("provider = ? AND repository = ? AND enabled = ?", provider, repository, true).
		Order("id").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	records := make([]storage.PipelineRecord, 0, len(data))
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

func toRow(record storage.PipelineRecord) row {
	return row{
		ID:         record.ID,
		Provider:   record.Provider,
		Repository: record.Repository,
		Enabled:    record.Enabled,
		Trigger:    record.Trigger,
		Drivers:    record.Drivers,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

func fromRow(data row) storage.PipelineRecord {
	return storage.PipelineRecord{
		ID:         data.ID,
		Provider:   data.Provider,
		Repository: data.Repository,
		Enabled:    data.Enabled,
		Trigger:    data.Trigger,
		Drivers:    data.Drivers,
		CreatedAt:  data.CreatedAt,
		UpdatedAt:  data.UpdatedAt,
	}
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
