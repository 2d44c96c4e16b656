package database

import (
	"context"
	"fmt"
	"time"

	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/go-pg/pg"
	"github.com/suyashkumar/dicom"
)

// IndexStore implements the relational index: study, series and instance
// rows, extended query tag values, change feed and deleted instance ledger.
// Every operation runs in a single transaction.
type IndexStore struct {
	db *pg.DB
}

// NewIndexStore returns an IndexStore implementation.
func NewIndexStore(db *pg.DB) *IndexStore {
	return &IndexStore{
		db: db,
	}
}

func nextWatermark(tx *pg.Tx) (int64, error) {
	var watermark int64
	_, err := tx.QueryOne(pg.Scan(&watermark), "SELECT nextval('watermark_sequence')")
	return watermark, err
}

// BeginCreateInstanceIndex allocates a watermark and inserts the instance in
// the Creating state, merging study and series rows and writing the values
// of queryTags.
func (s *IndexStore) BeginCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, queryTags []models.QueryTag) (int64, error) {
	id := utils.GetInstanceIdentifier(dataset, partitionKey)

	var watermark int64
	err := s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		var statuses []int16
		_, err := tx.Query(&statuses, `
SELECT status FROM instance
WHERE partition_key = ? AND study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ?`,
			id.PartitionKey, id.StudyInstanceUID, id.SeriesInstanceUID, id.SOPInstanceUID)
		if err != nil {
			return err
		}
		if len(statuses) > 0 {
			if models.InstanceStatus(statuses[0]) == models.InstanceStatusCreated {
				return models.ErrInstanceAlreadyExists
			}
			return models.ErrPendingInstance
		}

		watermark, err = nextWatermark(tx)
		if err != nil {
			return err
		}

		study := &models.Study{PartitionKey: partitionKey, Watermark: watermark}
		utils.ExtractDicomObjectFromDataset(dataset, study)
		if err := upsertStudy(tx, study); err != nil {
			return fmt.Errorf("upsert study: %w", err)
		}

		series := &models.Series{PartitionKey: partitionKey, StudyKey: study.StudyKey, Watermark: watermark}
		utils.ExtractDicomObjectFromDataset(dataset, series)
		if err := upsertSeries(tx, series); err != nil {
			return fmt.Errorf("upsert series: %w", err)
		}

		instance := &models.Instance{
			PartitionKey: partitionKey,
			StudyKey:     study.StudyKey,
			SeriesKey:    series.SeriesKey,
			Watermark:    watermark,
			Status:       models.InstanceStatusCreating,
		}
		utils.ExtractDicomObjectFromDataset(dataset, instance)
		if _, err := tx.Model(instance).Returning("instance_key").Insert(); err != nil {
			if isUniqueViolation(err) {
				return models.ErrPendingInstance
			}
			return fmt.Errorf("insert instance: %w", err)
		}

		values, _ := utils.GetQueryTagValues(dataset, queryTags)
		keys := instanceKeys{
			PartitionKey: partitionKey,
			StudyKey:     study.StudyKey,
			SeriesKey:    series.SeriesKey,
			InstanceKey:  instance.InstanceKey,
		}
		return upsertQueryTagValues(tx, keys, values, watermark)
	})
	if err != nil {
		return 0, err
	}
	return watermark, nil
}

// EndCreateInstanceIndex commits a Creating instance: it becomes Created,
// its file properties are recorded and a Create change feed row is added.
// queryTags must be the complete set of registered extended query tags.
func (s *IndexStore) EndCreateInstanceIndex(ctx context.Context, partitionKey int, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag, fileProperties *models.FileProperties) error {
	id := utils.GetInstanceIdentifier(dataset, partitionKey)

	return s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		instance := &models.Instance{}
		err := tx.Model(instance).
			Where("partition_key = ?", id.PartitionKey).
			Where("study_instance_uid = ?", id.StudyInstanceUID).
			Where("series_instance_uid = ?", id.SeriesInstanceUID).
			Where("sop_instance_uid = ?", id.SOPInstanceUID).
			Where("watermark = ?", watermark).
			Where("status = ?", models.InstanceStatusCreating).
			For("UPDATE").
			Select()
		if err == pg.ErrNoRows {
			return models.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}

		var registered []int
		if _, err := tx.Query(&registered, `SELECT tag_key FROM extended_query_tag FOR SHARE`); err != nil {
			return err
		}
		if !sameKeys(registered, models.QueryTagKeys(queryTags)) {
			return models.ErrExtendedQueryTagsOutOfDate
		}

		now := time.Now().UTC()
		_, err = tx.Model(instance).
			Set("status = ?", models.InstanceStatusCreated).
			Set("last_status_update_at = ?", now).
			WherePK().
			Update()
		if err != nil {
			return err
		}

		if fileProperties != nil {
			fp := *fileProperties
			fp.Watermark = watermark
			fp.InstanceKey = instance.InstanceKey
			if _, err := tx.Model(&fp).Insert(); err != nil {
				return fmt.Errorf("insert file properties: %w", err)
			}
		}

		current := watermark
		entry := &models.ChangeFeedEntry{
			Timestamp:         now,
			Action:            models.ChangeFeedActionCreate,
			PartitionKey:      id.PartitionKey,
			StudyInstanceUID:  id.StudyInstanceUID,
			SeriesInstanceUID: id.SeriesInstanceUID,
			SOPInstanceUID:    id.SOPInstanceUID,
			OriginalWatermark: watermark,
			CurrentWatermark:  &current,
		}
		_, err = tx.Model(entry).Insert()
		return err
	})
}

func sameKeys(a, b []int) bool {
	set := make(map[int]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	seen := make(map[int]bool, len(b))
	for _, k := range b {
		if !set[k] {
			return false
		}
		seen[k] = true
	}
	return len(seen) == len(set)
}

type instanceRow struct {
	instanceKeys
	Status int16 `sql:"status"`
}

// ReindexInstance writes the values of queryTags for a Created instance. A
// value is only replaced when this watermark is newer than the one that wrote
// it, so instances may be reindexed in any order.
func (s *IndexStore) ReindexInstance(ctx context.Context, dataset dicom.Dataset, watermark int64, queryTags []models.QueryTag) error {
	return s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		var row instanceRow
		_, err := tx.QueryOne(&row, `
SELECT partition_key, study_key, series_key, instance_key, status
FROM instance WHERE watermark = ? FOR SHARE`, watermark)
		if err == pg.ErrNoRows {
			return models.ErrInstanceNotFound
		}
		if err != nil {
			return err
		}
		if models.InstanceStatus(row.Status) != models.InstanceStatusCreated {
			return models.ErrPendingInstance
		}

		values, _ := utils.GetQueryTagValues(dataset, queryTags)
		return upsertQueryTagValues(tx, row.instanceKeys, values, watermark)
	})
}

// GetInstance returns a Created instance.
func (s *IndexStore) GetInstance(ctx context.Context, id models.InstanceIdentifier) (*models.Instance, error) {
	instance := &models.Instance{}
	err := s.db.WithContext(ctx).Model(instance).
		Where("partition_key = ?", id.PartitionKey).
		Where("study_instance_uid = ?", id.StudyInstanceUID).
		Where("series_instance_uid = ?", id.SeriesInstanceUID).
		Where("sop_instance_uid = ?", id.SOPInstanceUID).
		Where("status = ?", models.InstanceStatusCreated).
		Select()
	if err == pg.ErrNoRows {
		return nil, models.ErrInstanceNotFound
	}
	return instance, err
}

// GetInstanceIdentifiers lists the Created instances of a study, a series
// or a single instance. Empty uids widen the scope. Nothing found fails
// with the not found error of the narrowest level given.
func (s *IndexStore) GetInstanceIdentifiers(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID, sopInstanceUID string) ([]models.VersionedInstanceIdentifier, error) {
	query := `
SELECT partition_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark
FROM instance
WHERE partition_key = ? AND study_instance_uid = ? AND status = ?`
	params := []interface{}{partitionKey, studyInstanceUID, models.InstanceStatusCreated}
	if seriesInstanceUID != "" {
		query += " AND series_instance_uid = ?"
		params = append(params, seriesInstanceUID)
	}
	if sopInstanceUID != "" {
		query += " AND sop_instance_uid = ?"
		params = append(params, sopInstanceUID)
	}
	query += " ORDER BY watermark ASC"

	var ids []models.VersionedInstanceIdentifier
	if _, err := s.db.WithContext(ctx).Query(&ids, query, params...); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, notFoundError(seriesInstanceUID, sopInstanceUID)
	}
	return ids, nil
}

func notFoundError(seriesInstanceUID, sopInstanceUID string) error {
	switch {
	case sopInstanceUID != "":
		return models.ErrInstanceNotFound
	case seriesInstanceUID != "":
		return models.ErrSeriesNotFound
	default:
		return models.ErrStudyNotFound
	}
}

const instanceBatchesQuery = `
SELECT MIN(watermark) AS start_watermark, MAX(watermark) AS end_watermark
FROM (
	SELECT watermark, (ROW_NUMBER() OVER (ORDER BY watermark DESC) - 1) / ? AS batch
	FROM instance
	WHERE status = ? AND watermark <= ?
) AS t
GROUP BY batch
ORDER BY batch ASC
LIMIT ?`

// GetInstanceBatches splits the instances with the given status and a
// watermark up to maxWatermark into ranges of batchSize rows, newest first.
func (s *IndexStore) GetInstanceBatches(ctx context.Context, batchSize, batchCount int, status models.InstanceStatus, maxWatermark int64) ([]models.WatermarkRange, error) {
	var ranges []models.WatermarkRange
	_, err := s.db.WithContext(ctx).Query(&ranges, instanceBatchesQuery, batchSize, status, maxWatermark, batchCount)
	return ranges, err
}

// GetInstanceIdentifiersByWatermarkRange lists instances with the given
// status inside r.
func (s *IndexStore) GetInstanceIdentifiersByWatermarkRange(ctx context.Context, r models.WatermarkRange, status models.InstanceStatus) ([]models.VersionedInstanceIdentifier, error) {
	var ids []models.VersionedInstanceIdentifier
	_, err := s.db.WithContext(ctx).Query(&ids, `
SELECT partition_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark
FROM instance
WHERE watermark BETWEEN ? AND ? AND status = ?
ORDER BY watermark ASC`, r.Start, r.End, status)
	return ids, err
}

// GetStaleCreatingInstances lists instances stuck in Creating since before
// olderThan.
func (s *IndexStore) GetStaleCreatingInstances(ctx context.Context, olderThan time.Time, limit int) ([]models.VersionedInstanceIdentifier, error) {
	var ids []models.VersionedInstanceIdentifier
	_, err := s.db.WithContext(ctx).Query(&ids, `
SELECT partition_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark
FROM instance
WHERE status = ? AND created_at < ?
ORDER BY created_at ASC
LIMIT ?`, models.InstanceStatusCreating, olderThan, limit)
	return ids, err
}

// GetMaxInstanceWatermark returns the highest watermark handed out so far,
// or 0 when none has been.
func (s *IndexStore) GetMaxInstanceWatermark(ctx context.Context) (int64, error) {
	var watermark int64
	_, err := s.db.WithContext(ctx).QueryOne(pg.Scan(&watermark), `SELECT COALESCE(MAX(watermark), 0) FROM instance`)
	return watermark, err
}
