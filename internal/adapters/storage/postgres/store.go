// Package postgres is the relational system of record for stacks and
// their transcripts.
package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/PabloGalante/stacks/internal/domain"
	"github.com/PabloGalante/stacks/internal/observability"
)

type Store struct {
	db *gorm.DB
}

var _ domain.Store = (*Store)(nil)

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, retrying while the database comes up.
func Open(ctx context.Context, dsn string, attempts int) (*Store, error) {
	if attempts <= 0 {
		attempts = 1
	}
	log := observability.LoggerFromContext(ctx)

	var lastErr error
	for i := range attempts {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			sqlDB, dbErr := db.DB()
			if dbErr == nil {
				dbErr = sqlDB.PingContext(ctx)
			}
			if dbErr == nil {
				log.Infow("connected to postgres", "attempt", i+1)
				return New(db), nil
			}
			err = dbErr
		}

		lastErr = err
		log.Warnw("postgres connection attempt failed", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", attempts, lastErr)
}

// Migrate creates or updates the stack tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&sessionRow{}, &messageRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	observability.LoggerFromContext(ctx).Infow("database migration completed")
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Atomically(ctx context.Context, fn func(tx domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	row := toSessionRow(session)
	err := s.db.WithContext(ctx).Omit("Messages").Create(&row).Error
	return translate("create session", err, domain.ErrSessionNotFound)
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	row := toSessionRow(session)
	res := s.db.WithContext(ctx).
		Model(&sessionRow{}).
		Where("id = ?", row.ID).
		Updates(map[string]any{
			"title":            row.Title,
			"stack_type":       row.StackType,
			"domain":           row.Domain,
			"subject":          row.Subject,
			"current_question": row.CurrentQuestion,
			"status":           row.Status,
			"updated_at":       row.UpdatedAt,
			"completed_at":     row.CompletedAt,
		})
	if res.Error != nil {
		return translate("update session", res.Error, domain.ErrSessionNotFound)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update session %s: %w", session.ID, domain.ErrSessionNotFound)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if err != nil {
		return nil, translate("get session", err, domain.ErrSessionNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Session, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []sessionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate("list sessions", err, domain.ErrSessionNotFound)
	}

	out := make([]*domain.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	row := toMessageRow(msg)
	err := s.db.WithContext(ctx).Create(&row).Error
	return translate("append message", err, domain.ErrMessageNotFound)
}

func (s *Store) GetMessage(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	var row messageRow
	err := s.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if err != nil {
		return nil, translate("get message", err, domain.ErrMessageNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) GetMessagesBySession(ctx context.Context, sessionID domain.SessionID, limit int) ([]*domain.Message, error) {
	q := s.db.WithContext(ctx).Where("session_id = ?", string(sessionID))

	var rows []messageRow
	var err error
	if limit > 0 {
		// newest N, then back to creation order
		err = q.Order("created_at DESC").Limit(limit).Find(&rows).Error
		slices.Reverse(rows)
	} else {
		err = q.Order("created_at ASC").Find(&rows).Error
	}
	if err != nil {
		return nil, translate("list messages", err, domain.ErrSessionNotFound)
	}

	out := make([]*domain.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CountMessagesBySession(ctx context.Context, sessionID domain.SessionID) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("session_id = ?", string(sessionID)).
		Count(&n).Error
	if err != nil {
		return 0, translate("count messages", err, domain.ErrSessionNotFound)
	}
	return int(n), nil
}

func (s *Store) UpdateMessageText(ctx context.Context, id domain.MessageID, text string) error {
	res := s.db.WithContext(ctx).
		Model(&messageRow{}).
		Where("id = ?", string(id)).
		Update("text", text)
	if res.Error != nil {
		return translate("update message", res.Error, domain.ErrMessageNotFound)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update message %s: %w", id, domain.ErrMessageNotFound)
	}
	return nil
}

func (s *Store) DeleteMessagesAfter(ctx context.Context, sessionID domain.SessionID, t time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("session_id = ? AND created_at > ?", string(sessionID), t.UTC()).
		Delete(&messageRow{})
	if res.Error != nil {
		return 0, translate("delete messages", res.Error, domain.ErrSessionNotFound)
	}
	return int(res.RowsAffected), nil
}
