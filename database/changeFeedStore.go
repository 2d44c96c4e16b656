package database

import (
	"context"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
)

// ChangeFeedStore reads the change feed.
type ChangeFeedStore struct {
	db *pg.DB
}

// NewChangeFeedStore returns a ChangeFeedStore implementation.
func NewChangeFeedStore(db *pg.DB) *ChangeFeedStore {
	return &ChangeFeedStore{
		db: db,
	}
}

// GetChangeFeed returns up to limit entries inside window. With
// ChangeFeedOrderBySequence offset is a sequence number and entries after it
// are returned; with ChangeFeedOrderByTimestamp it is a row offset.
func (s *ChangeFeedStore) GetChangeFeed(ctx context.Context, window models.TimeRange, offset int64, limit int, order models.ChangeFeedOrder) ([]*models.ChangeFeedEntry, error) {
	var entries []*models.ChangeFeedEntry
	q := s.db.WithContext(ctx).Model(&entries)
	q = applyTimeRange(q, window)

	switch order {
	case models.ChangeFeedOrderByTimestamp:
		q = q.Order("timestamp ASC", "sequence ASC").Offset(int(offset))
	default:
		q = q.Where("sequence > ?", offset).Order("sequence ASC")
	}

	if err := q.Limit(limit).Select(); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetChangeFeedLatest returns the last entry in the given order, or nil
// when the feed is empty.
func (s *ChangeFeedStore) GetChangeFeedLatest(ctx context.Context, order models.ChangeFeedOrder) (*models.ChangeFeedEntry, error) {
	entry := &models.ChangeFeedEntry{}
	q := s.db.WithContext(ctx).Model(entry)
	switch order {
	case models.ChangeFeedOrderByTimestamp:
		q = q.Order("timestamp DESC", "sequence DESC")
	default:
		q = q.Order("sequence DESC")
	}

	err := q.Limit(1).Select()
	if err == pg.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func applyTimeRange(q *orm.Query, window models.TimeRange) *orm.Query {
	if !window.Start.IsZero() {
		q = q.Where("timestamp >= ?", window.Start)
	}
	if !window.End.IsZero() {
		q = q.Where("timestamp < ?", window.End)
	}
	return q
}
