package database

import (
	"context"
	"fmt"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
)

// ExtendedQueryTagStore manages the registered extended query tags.
type ExtendedQueryTagStore struct {
	db *pg.DB
}

// NewExtendedQueryTagStore returns an ExtendedQueryTagStore implementation.
func NewExtendedQueryTagStore(db *pg.DB) *ExtendedQueryTagStore {
	return &ExtendedQueryTagStore{
		db: db,
	}
}

// AddExtendedQueryTags registers tags in the Adding status. A tag that is
// still Adding or Reindexing without an operation is superseded, any other
// existing tag fails the whole request.
func (s *ExtendedQueryTagStore) AddExtendedQueryTags(ctx context.Context, tags []*models.ExtendedQueryTag, maxAllowedCount int) ([]*models.ExtendedQueryTag, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	paths := make([]string, 0, len(tags))
	for _, t := range tags {
		paths = append(paths, t.TagPath)
	}

	err := s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		if _, err := tx.Exec(`LOCK TABLE extended_query_tag IN EXCLUSIVE MODE`); err != nil {
			return err
		}

		var existing []*models.ExtendedQueryTag
		err := tx.Model(&existing).Where("tag_path IN (?)", pg.In(paths)).Select()
		if err != nil {
			return err
		}
		for _, t := range existing {
			if t.TagStatus == models.ExtendedQueryTagStatusReady || t.OperationID != nil {
				return fmt.Errorf("%w: %s", models.ErrTagsAlreadyExist, t.TagPath)
			}
		}
		for _, t := range existing {
			if err := deleteExtendedQueryTag(tx, t); err != nil {
				return err
			}
		}

		var count int
		if _, err := tx.QueryOne(pg.Scan(&count), `SELECT COUNT(*) FROM extended_query_tag`); err != nil {
			return err
		}
		if maxAllowedCount > 0 && count+len(tags) > maxAllowedCount {
			return models.ErrTagsExceedMaxAllowedCount
		}

		for _, t := range tags {
			t.TagStatus = models.ExtendedQueryTagStatusAdding
			t.QueryStatus = models.QueryStatusEnabled
			t.OperationID = nil
			t.ErrorCount = 0
			if _, err := tx.Model(t).Returning("tag_key, created_at").Insert(); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: %s", models.ErrTagsAlreadyExist, t.TagPath)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// GetExtendedQueryTags lists the registered tags.
func (s *ExtendedQueryTagStore) GetExtendedQueryTags(ctx context.Context, opts *SelectQueryOptions) ([]*models.ExtendedQueryTag, error) {
	var tags []*models.ExtendedQueryTag
	q := s.db.WithContext(ctx).Model(&tags)
	if opts == nil || opts.OrderBy == "" {
		q = q.Order("tag_key ASC")
	}
	err := opts.Apply(q).Select()
	return tags, err
}

// GetExtendedQueryTag returns the tag registered under path.
func (s *ExtendedQueryTagStore) GetExtendedQueryTag(ctx context.Context, path string) (*models.ExtendedQueryTag, error) {
	t := &models.ExtendedQueryTag{}
	err := s.db.WithContext(ctx).Model(t).Where("tag_path = ?", path).Select()
	if err == pg.ErrNoRows {
		return nil, models.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetExtendedQueryTagsByOperation lists the tags assigned to a reindex
// operation.
func (s *ExtendedQueryTagStore) GetExtendedQueryTagsByOperation(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error) {
	var tags []*models.ExtendedQueryTag
	err := s.db.WithContext(ctx).Model(&tags).
		Where("operation_id = ?", operationID).
		Order("tag_key ASC").
		Select()
	return tags, err
}

// AssignReindexingOperation moves Adding tags without an operation to
// Reindexing under operationID and returns the tags it assigned. A tag
// carries at most one operation.
func (s *ExtendedQueryTagStore) AssignReindexingOperation(ctx context.Context, tagKeys []int, operationID string) ([]*models.ExtendedQueryTag, error) {
	if len(tagKeys) == 0 {
		return nil, nil
	}
	var tags []*models.ExtendedQueryTag
	_, err := s.db.WithContext(ctx).Query(&tags, `
UPDATE extended_query_tag
SET tag_status = ?, operation_id = ?
WHERE tag_key IN (?) AND operation_id IS NULL AND tag_status = ?
RETURNING *`, models.ExtendedQueryTagStatusReindexing, operationID, pg.In(tagKeys), models.ExtendedQueryTagStatusAdding)
	return tags, err
}

// CompleteReindexing marks the tags of operationID Ready and releases the
// operation.
func (s *ExtendedQueryTagStore) CompleteReindexing(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error) {
	var tags []*models.ExtendedQueryTag
	_, err := s.db.WithContext(ctx).Query(&tags, `
UPDATE extended_query_tag
SET tag_status = ?, operation_id = NULL
WHERE operation_id = ?
RETURNING *`, models.ExtendedQueryTagStatusReady, operationID)
	return tags, err
}

// UpdateQueryStatus enables or disables querying on a tag.
func (s *ExtendedQueryTagStore) UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error) {
	t := &models.ExtendedQueryTag{}
	_, err := s.db.WithContext(ctx).QueryOne(t, `
UPDATE extended_query_tag SET query_status = ? WHERE tag_path = ? RETURNING *`, status, path)
	if err == pg.ErrNoRows {
		return nil, models.ErrTagNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// IncrementErrorCount adds delta to the number of instances that failed to
// index tagKey.
func (s *ExtendedQueryTagStore) IncrementErrorCount(ctx context.Context, tagKey, delta int) error {
	_, err := s.db.WithContext(ctx).Exec(`UPDATE extended_query_tag SET error_count = error_count + ? WHERE tag_key = ?`, delta, tagKey)
	return err
}

// DeleteExtendedQueryTag removes a tag and all of its values. A tag that is
// being reindexed cannot be deleted.
func (s *ExtendedQueryTagStore) DeleteExtendedQueryTag(ctx context.Context, path string) error {
	return s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		t := &models.ExtendedQueryTag{}
		err := tx.Model(t).Where("tag_path = ?", path).For("UPDATE").Select()
		if err == pg.ErrNoRows {
			return models.ErrTagNotFound
		}
		if err != nil {
			return err
		}
		if t.OperationID != nil {
			return models.ErrTagBusy
		}
		return deleteExtendedQueryTag(tx, t)
	})
}

func deleteExtendedQueryTag(tx *pg.Tx, t *models.ExtendedQueryTag) error {
	dataType, ok := models.DataTypeForVR(t.TagVR)
	if ok {
		table := queryTagValueTables[dataType]
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE tag_key = ?", table), t.TagKey); err != nil {
			return err
		}
	}
	_, err := tx.Model(t).WherePK().Delete()
	return err
}
