package postgres

import (
	"time"

	"github.com/PabloGalante/stacks/internal/domain"
)

type sessionRow struct {
	ID              string     `gorm:"column:id;primaryKey;type:varchar(64)"`
	UserID          string     `gorm:"column:user_id;type:varchar(128);not null;index:idx_stack_sessions_user_created,priority:1"`
	Title           string     `gorm:"column:title;type:text;not null"`
	StackType       string     `gorm:"column:stack_type;type:varchar(32);not null"`
	Domain          string     `gorm:"column:domain;type:varchar(32);not null"`
	Subject         string     `gorm:"column:subject;type:text;not null"`
	CurrentQuestion int        `gorm:"column:current_question;not null;check:current_question >= 0"`
	Status          string     `gorm:"column:status;type:varchar(20);not null;check:status IN ('in_progress','completed')"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_stack_sessions_user_created,priority:2,sort:desc"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`

	Messages []messageRow `gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (sessionRow) TableName() string { return "stack_sessions" }

type messageRow struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	SessionID      string    `gorm:"column:session_id;type:varchar(64);not null;index:idx_stack_messages_session_created,priority:1"`
	Author         string    `gorm:"column:author;type:varchar(16);not null;check:author IN ('user','assistant')"`
	Text           string    `gorm:"column:text;type:text;not null"`
	QuestionNumber *int      `gorm:"column:question_number"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;autoCreateTime:false;index:idx_stack_messages_session_created,priority:2"`
}

func (messageRow) TableName() string { return "stack_messages" }

func toSessionRow(s *domain.Session) sessionRow {
	row := sessionRow{
		ID:              string(s.ID),
		UserID:          string(s.UserID),
		Title:           s.Title,
		StackType:       string(s.StackType),
		Domain:          string(s.Domain),
		Subject:         s.Subject,
		CurrentQuestion: s.CurrentQuestion,
		Status:          string(s.Status),
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
	if s.CompletedAt != nil {
		t := s.CompletedAt.UTC()
		row.CompletedAt = &t
	}
	return row
}

func (r sessionRow) toDomain() *domain.Session {
	s := &domain.Session{
		ID:              domain.SessionID(r.ID),
		UserID:          domain.UserID(r.UserID),
		Title:           r.Title,
		StackType:       domain.StackType(r.StackType),
		Domain:          domain.LifeDomain(r.Domain),
		Subject:         r.Subject,
		CurrentQuestion: r.CurrentQuestion,
		Status:          domain.Status(r.Status),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		s.CompletedAt = &t
	}
	return s
}

func toMessageRow(m *domain.Message) messageRow {
	return messageRow{
		ID:             string(m.ID),
		SessionID:      string(m.SessionID),
		Author:         string(m.Author),
		Text:           m.Text,
		QuestionNumber: m.QuestionNumber,
		CreatedAt:      m.CreatedAt.UTC(),
	}
}

func (r messageRow) toDomain() *domain.Message {
	return &domain.Message{
		ID:             domain.MessageID(r.ID),
		SessionID:      domain.SessionID(r.SessionID),
		Author:         domain.Role(r.Author),
		Text:           r.Text,
		QuestionNumber: r.QuestionNumber,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}
