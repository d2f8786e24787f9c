// Package audit persists completed prediction sessions consumed from the
// event bus.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PredictionLog is one answered prediction session.
type PredictionLog struct {
	ID         uuid.UUID         `gorm:"primaryKey;column:id" json:"id"`
	EventID    string            `gorm:"column:event_id;uniqueIndex" json:"event_id"`
	Session    string            `gorm:"column:session;index" json:"session"`
	Source     string            `gorm:"column:source" json:"source"`
	AgeMonths  int               `gorm:"column:age_months" json:"age_months"`
	CodeCount  int               `gorm:"column:code_count" json:"code_count"`
	TopDisease string            `gorm:"column:top_disease" json:"top_disease,omitempty"`
	Candidates int               `gorm:"column:candidates" json:"candidates"`
	Payload    datatypes.JSONMap `gorm:"column:payload" json:"payload"`
	CreatedAt  time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides gorm naming.
func (PredictionLog) TableName() string {
	return "prediction_logs"
}

// Store is the persistence used by the recorder and the HTTP handler.
type Store interface {
	Save(ctx context.Context, log *PredictionLog) error
	Recent(ctx context.Context, limit int) ([]PredictionLog, error)
}

// Repository handles prediction log queries.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PredictionLog{})
}

func (r *Repository) Save(ctx context.Context, log *PredictionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// Recent returns the most recent prediction logs up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]PredictionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []PredictionLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
