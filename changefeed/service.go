// Package changefeed serves the ordered log of instance creates and
// deletes.
package changefeed

import (
	"context"
	"errors"
	"fmt"

	"dicom-object-store/models"
)

var (
	ErrInvalidLimit  = errors.New("invalid change feed limit")
	ErrInvalidOffset = errors.New("invalid change feed offset")
	ErrInvalidWindow = errors.New("change feed start time must be before end time")
)

type Store interface {
	GetChangeFeed(ctx context.Context, window models.TimeRange, offset int64, limit int, order models.ChangeFeedOrder) ([]*models.ChangeFeedEntry, error)
	GetChangeFeedLatest(ctx context.Context, order models.ChangeFeedOrder) (*models.ChangeFeedEntry, error)
}

type Service struct {
	Store    Store
	MaxLimit int
}

func NewService(store Store, maxLimit int) *Service {
	return &Service{
		Store:    store,
		MaxLimit: maxLimit,
	}
}

// GetChangeFeed validates the paging arguments and reads one page.
func (s *Service) GetChangeFeed(ctx context.Context, window models.TimeRange, offset int64, limit int, order models.ChangeFeedOrder) ([]*models.ChangeFeedEntry, error) {
	if limit < 1 || limit > s.MaxLimit {
		return nil, fmt.Errorf("%w: %d is outside [1, %d]", ErrInvalidLimit, limit, s.MaxLimit)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}
	if !window.Start.IsZero() && !window.End.IsZero() && !window.Start.Before(window.End) {
		return nil, ErrInvalidWindow
	}
	entries, err := s.Store.GetChangeFeed(ctx, window, offset, limit, order)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.ChangeFeedEntry{}
	}
	return entries, nil
}

// GetChangeFeedLatest returns the newest entry, or nil for an empty feed.
func (s *Service) GetChangeFeedLatest(ctx context.Context, order models.ChangeFeedOrder) (*models.ChangeFeedEntry, error) {
	return s.Store.GetChangeFeedLatest(ctx, order)
}
