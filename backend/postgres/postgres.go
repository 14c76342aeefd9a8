// Package postgres is the self-hosted record store: one table per record
// kind, keyed by the auth user id, accessed through gorm.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/heartlink/onboardgate"
)

type phoneModel struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID      string    `gorm:"column:user_id;uniqueIndex;not null"`
	PhoneNumber string    `gorm:"column:phone_number;not null"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (phoneModel) TableName() string { return "phones" }

type profileModel struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string    `gorm:"column:user_id;uniqueIndex;not null"`
	Document  []byte    `gorm:"column:document;type:jsonb;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (profileModel) TableName() string { return "profiles" }

// Connect opens a pooled connection and pings it.
func Connect(ctx context.Context, databaseURL string, maxConns int) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:            true,
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements onboardgate.RecordStore.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New wraps db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// AutoMigrate creates or updates the phones and profiles tables.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&phoneModel{}, &profileModel{}); err != nil {
		return fmt.Errorf("migrate onboarding tables: %w", err)
	}
	return nil
}

// RecordExists implements onboardgate.RecordStore.
func (s *Store) RecordExists(ctx context.Context, kind onboardgate.RecordKind, userID string) (bool, error) {
	model, err := modelFor(kind)
	if err != nil {
		return false, err
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("%w: count %s: %w", onboardgate.ErrBackendUnavailable, kind, err)
	}
	return n > 0, nil
}

// CreateRecord implements onboardgate.RecordStore.
func (s *Store) CreateRecord(ctx context.Context, kind onboardgate.RecordKind, userID string, payload map[string]any) error {
	var rec any
	switch kind {
	case onboardgate.RecordPhone:
		number, _ := payload["phone_number"].(string)
		if strings.TrimSpace(number) == "" {
			return fmt.Errorf("%w: phone_number is required", onboardgate.ErrInvalidPayload)
		}
		rec = &phoneModel{ID: uuid.New(), UserID: userID, PhoneNumber: number, CreatedAt: s.now().UTC()}
	case onboardgate.RecordProfile:
		doc := maps.Clone(payload)
		if doc == nil {
			doc = map[string]any{}
		}
		doc["userId"] = userID
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode profile: %w", err)
		}
		rec = &profileModel{ID: uuid.New(), UserID: userID, Document: raw, CreatedAt: s.now().UTC()}
	default:
		return fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
	}

	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return onboardgate.ErrRecordExists
		}
		return fmt.Errorf("%w: insert %s: %w", onboardgate.ErrBackendUnavailable, kind, err)
	}
	return nil
}

func modelFor(kind onboardgate.RecordKind) (any, error) {
	switch kind {
	case onboardgate.RecordPhone:
		return &phoneModel{}, nil
	case onboardgate.RecordProfile:
		return &profileModel{}, nil
	}
	return nil, fmt.Errorf("%w: %q", onboardgate.ErrUnknownKind, kind)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
