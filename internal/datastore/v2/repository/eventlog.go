package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/datastore/v2/entities"
)

// EventlogRepository appends and reads device event log entries.
type EventlogRepository interface {
	Log(ctx context.Context, entry *entities.Eventlog) error
	List(ctx context.Context, filter EventlogFilter) ([]entities.Eventlog, error)
}

// EventlogFilter controls event log queries.
type EventlogFilter struct {
	DeviceID uint
	Type     string
	Since    time.Time
	Limit    int
}

type eventlogRepository struct {
	db *gorm.DB
}

// NewEventlogRepository creates a new EventlogRepository.
func NewEventlogRepository(db *gorm.DB) EventlogRepository {
	return &eventlogRepository{db: db}
}

func (r *eventlogRepository) Log(ctx context.Context, entry *entities.Eventlog) error {
	if entry.Datetime.IsZero() {
		entry.Datetime = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write eventlog: %w", err)
	}
	return nil
}

func (r *eventlogRepository) List(ctx context.Context, filter EventlogFilter) ([]entities.Eventlog, error) {
	query := r.db.WithContext(ctx).Order("event_id DESC")
	if filter.DeviceID > 0 {
		query = query.Where("device_id = ?", filter.DeviceID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if !filter.Since.IsZero() {
		query = query.Where("datetime >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []entities.Eventlog
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list eventlog: %w", err)
	}
	return entries, nil
}
