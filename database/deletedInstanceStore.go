package database

import (
	"context"
	"time"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
)

// DeletedInstanceStore reads and trims the deleted instance ledger.
type DeletedInstanceStore struct {
	db *pg.DB
}

// NewDeletedInstanceStore returns a DeletedInstanceStore implementation.
func NewDeletedInstanceStore(db *pg.DB) *DeletedInstanceStore {
	return &DeletedInstanceStore{
		db: db,
	}
}

// RetrieveDeletedInstances returns ledger rows that are due for cleanup and
// have been retried fewer than maxRetries times, oldest first.
func (s *DeletedInstanceStore) RetrieveDeletedInstances(ctx context.Context, batchSize, maxRetries int) ([]*models.DeletedInstance, error) {
	var entries []*models.DeletedInstance
	err := s.db.WithContext(ctx).Model(&entries).
		Where("retry_count < ?", maxRetries).
		Where("cleanup_after <= ?", time.Now().UTC()).
		Order("cleanup_after ASC").
		Limit(batchSize).
		Select()
	return entries, err
}

func ledgerKey(entry *models.DeletedInstance) (string, []interface{}) {
	return `partition_key = ? AND study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ? AND watermark = ?`,
		[]interface{}{entry.PartitionKey, entry.StudyInstanceUID, entry.SeriesInstanceUID, entry.SOPInstanceUID, entry.Watermark}
}

// DeleteDeletedInstance removes a ledger row once its blobs are gone.
func (s *DeletedInstanceStore) DeleteDeletedInstance(ctx context.Context, entry *models.DeletedInstance) error {
	where, params := ledgerKey(entry)
	_, err := s.db.WithContext(ctx).Exec(`DELETE FROM deleted_instance WHERE `+where, params...)
	return err
}

// IncrementDeletedInstanceRetry records a failed cleanup attempt and
// postpones the next one to cleanupAfter. It returns the new retry count.
func (s *DeletedInstanceStore) IncrementDeletedInstanceRetry(ctx context.Context, entry *models.DeletedInstance, cleanupAfter time.Time) (int, error) {
	where, params := ledgerKey(entry)
	var retries int
	_, err := s.db.WithContext(ctx).QueryOne(pg.Scan(&retries), `
UPDATE deleted_instance SET retry_count = retry_count + 1, cleanup_after = ?
WHERE `+where+`
RETURNING retry_count`, append([]interface{}{cleanupAfter}, params...)...)
	if err == pg.ErrNoRows {
		return 0, nil
	}
	return retries, err
}

// GetOldestDeletedInstance returns the deleted date of the oldest pending
// row, or the zero time when the ledger is empty.
func (s *DeletedInstanceStore) GetOldestDeletedInstance(ctx context.Context) (time.Time, error) {
	var oldest pg.NullTime
	_, err := s.db.WithContext(ctx).QueryOne(pg.Scan(&oldest), `SELECT MIN(deleted_date) FROM deleted_instance`)
	if err != nil {
		return time.Time{}, err
	}
	return oldest.Time, nil
}

// CountDeletedInstancesPastMaxRetries counts the rows the reaper gave up on.
func (s *DeletedInstanceStore) CountDeletedInstancesPastMaxRetries(ctx context.Context, maxRetries int) (int, error) {
	var count int
	_, err := s.db.WithContext(ctx).QueryOne(pg.Scan(&count), `SELECT COUNT(*) FROM deleted_instance WHERE retry_count >= ?`, maxRetries)
	return count, err
}
