package credstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("credstore.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("credstore.empty_database_url")
	errSQLiteEmptyPath     = errors.New("credstore.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("credstore.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("credstore.unsupported_no_scheme")
)

// DatabaseStore persists credential slots using GORM so they survive process
// restarts within one client instance.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type credentialSlotRecord struct {
	SlotKind      string `gorm:"column:slot_kind;primaryKey"`
	SlotValue     string `gorm:"column:slot_value;not null"`
	UpdatedAtUnix int64  `gorm:"column:updated_at_unix;not null"`
}

func (credentialSlotRecord) TableName() string {
	return "credential_slots"
}

// NewDatabaseStore constructs a GORM-backed store. The database URL scheme
// selects the driver: sqlite:// or postgres://.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("credstore.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("credstore.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&credentialSlotRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("credstore.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Get returns the value stored in the slot, or ErrSlotEmpty.
func (store *DatabaseStore) Get(ctx context.Context, kind Kind) (string, error) {
	if !knownKind(kind) {
		return "", fmt.Errorf("credstore.get.%s: %w", store.driverLabel, ErrUnknownKind)
	}
	var record credentialSlotRecord
	err := store.db.WithContext(ctx).Where("slot_kind = ?", string(kind)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("credstore.get.%s: %w", store.driverLabel, ErrSlotEmpty)
		}
		return "", fmt.Errorf("credstore.get.%s: %w", store.driverLabel, err)
	}
	if record.SlotValue == "" {
		return "", fmt.Errorf("credstore.get.%s: %w", store.driverLabel, ErrSlotEmpty)
	}
	return record.SlotValue, nil
}

// Set writes the slot, replacing any previous value.
func (store *DatabaseStore) Set(ctx context.Context, kind Kind, value string) error {
	if !knownKind(kind) {
		return fmt.Errorf("credstore.set.%s: %w", store.driverLabel, ErrUnknownKind)
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("credstore.set.%s: %w", store.driverLabel, ErrEmptyValue)
	}
	record := credentialSlotRecord{
		SlotKind:      string(kind),
		SlotValue:     value,
		UpdatedAtUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"slot_value", "updated_at_unix"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("credstore.set.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Clear removes one slot. Clearing an absent slot is not an error.
func (store *DatabaseStore) Clear(ctx context.Context, kind Kind) error {
	if !knownKind(kind) {
		return fmt.Errorf("credstore.clear.%s: %w", store.driverLabel, ErrUnknownKind)
	}
	err := store.db.WithContext(ctx).
		Where("slot_kind = ?", string(kind)).
		Delete(&credentialSlotRecord{}).Error
	if err != nil {
		return fmt.Errorf("credstore.clear.%s: %w", store.driverLabel, err)
	}
	return nil
}

// ClearAll removes every slot.
func (store *DatabaseStore) ClearAll(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&credentialSlotRecord{}).Error
	if err != nil {
		return fmt.Errorf("credstore.clear_all.%s: %w", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("credstore.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("credstore.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("credstore.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("credstore.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
