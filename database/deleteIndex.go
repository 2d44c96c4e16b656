package database

import (
	"context"
	"time"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
)

type deletedRow struct {
	instanceKeys
	StudyInstanceUID  string `sql:"study_instance_uid"`
	SeriesInstanceUID string `sql:"series_instance_uid"`
	SOPInstanceUID    string `sql:"sop_instance_uid"`
	Watermark         int64  `sql:"watermark"`
	OriginalWatermark *int64 `sql:"original_watermark"`
	NewWatermark      *int64 `sql:"new_watermark"`
	Status            int16  `sql:"status"`
}

func (r deletedRow) identifier() models.InstanceIdentifier {
	return models.InstanceIdentifier{
		PartitionKey:      r.PartitionKey,
		StudyInstanceUID:  r.StudyInstanceUID,
		SeriesInstanceUID: r.SeriesInstanceUID,
		SOPInstanceUID:    r.SOPInstanceUID,
	}
}

type deletedFile struct {
	Watermark int64  `sql:"watermark"`
	Path      string `sql:"file_path"`
	ETag      string `sql:"etag"`
}

// insertDeletedInstance queues the blobs of one instance version for the
// cleanup reaper.
func insertDeletedInstance(db orm.DB, id models.InstanceIdentifier, version int64, file *deletedFile, deletedAt, cleanupAfter time.Time) (models.DeletedInstance, error) {
	entry := models.DeletedInstance{
		PartitionKey:      id.PartitionKey,
		StudyInstanceUID:  id.StudyInstanceUID,
		SeriesInstanceUID: id.SeriesInstanceUID,
		SOPInstanceUID:    id.SOPInstanceUID,
		Watermark:         version,
		DeletedDate:       deletedAt,
		CleanupAfter:      cleanupAfter,
	}
	if file != nil {
		path, etag := file.Path, file.ETag
		entry.FilePath = &path
		entry.ETag = &etag
	}
	_, err := db.Model(&entry).OnConflict("DO NOTHING").Insert()
	return entry, err
}

// DeleteInstanceIndex removes a single instance.
func (s *IndexStore) DeleteInstanceIndex(ctx context.Context, id models.InstanceIdentifier, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	return s.deleteInstances(ctx, id, nil, models.ErrInstanceNotFound, cleanupAfter)
}

// DeleteSeriesIndex removes every instance of a series.
func (s *IndexStore) DeleteSeriesIndex(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	id := models.InstanceIdentifier{PartitionKey: partitionKey, StudyInstanceUID: studyInstanceUID, SeriesInstanceUID: seriesInstanceUID}
	return s.deleteInstances(ctx, id, nil, models.ErrSeriesNotFound, cleanupAfter)
}

// DeleteStudyIndex removes every instance of a study.
func (s *IndexStore) DeleteStudyIndex(ctx context.Context, partitionKey int, studyInstanceUID string, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	id := models.InstanceIdentifier{PartitionKey: partitionKey, StudyInstanceUID: studyInstanceUID}
	return s.deleteInstances(ctx, id, nil, models.ErrStudyNotFound, cleanupAfter)
}

// DeleteInstanceIndexByWatermark removes exactly one version of an instance,
// whatever its status. The ledger entries are due immediately.
func (s *IndexStore) DeleteInstanceIndexByWatermark(ctx context.Context, id models.VersionedInstanceIdentifier) ([]models.DeletedInstance, error) {
	watermark := id.Version
	return s.deleteInstances(ctx, id.InstanceIdentifier, &watermark, models.ErrInstanceNotFound, time.Now().UTC())
}

func (s *IndexStore) deleteInstances(ctx context.Context, id models.InstanceIdentifier, watermark *int64, notFound error, cleanupAfter time.Time) ([]models.DeletedInstance, error) {
	var ledger []models.DeletedInstance
	err := s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		ledger = nil

		query := `
DELETE FROM instance
WHERE partition_key = ? AND study_instance_uid = ?`
		params := []interface{}{id.PartitionKey, id.StudyInstanceUID}
		if id.SeriesInstanceUID != "" {
			query += " AND series_instance_uid = ?"
			params = append(params, id.SeriesInstanceUID)
		}
		if id.SOPInstanceUID != "" {
			query += " AND sop_instance_uid = ?"
			params = append(params, id.SOPInstanceUID)
		}
		if watermark != nil {
			query += " AND watermark = ?"
			params = append(params, *watermark)
		}
		query += `
RETURNING partition_key, study_key, series_key, instance_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark, original_watermark, new_watermark, status`

		var rows []deletedRow
		if _, err := tx.Query(&rows, query, params...); err != nil {
			return err
		}
		if len(rows) == 0 {
			return notFound
		}

		instanceKeys := make([]int64, 0, len(rows))
		seriesKeys := make([]int64, 0, len(rows))
		studyKeys := make([]int64, 0, len(rows))
		for _, row := range rows {
			instanceKeys = append(instanceKeys, row.InstanceKey)
			seriesKeys = append(seriesKeys, row.SeriesKey)
			studyKeys = append(studyKeys, row.StudyKey)
		}

		var files []deletedFile
		_, err := tx.Query(&files, `
DELETE FROM file_property WHERE instance_key IN (?)
RETURNING watermark, file_path, etag`, pg.In(instanceKeys))
		if err != nil {
			return err
		}
		filesByWatermark := make(map[int64]deletedFile, len(files))
		for _, f := range files {
			filesByWatermark[f.Watermark] = f
		}

		if err := deleteQueryTagValues(tx, "instance_key", instanceKeys); err != nil {
			return err
		}

		now := time.Now().UTC()
		for _, row := range rows {
			versions := []int64{row.Watermark}
			if row.OriginalWatermark != nil && *row.OriginalWatermark != row.Watermark {
				versions = append(versions, *row.OriginalWatermark)
			}
			if row.NewWatermark != nil {
				versions = append(versions, *row.NewWatermark)
			}
			for _, version := range versions {
				var file *deletedFile
				if f, ok := filesByWatermark[version]; ok {
					file = &f
				}
				entry, err := insertDeletedInstance(tx, row.identifier(), version, file, now, cleanupAfter)
				if err != nil {
					return err
				}
				ledger = append(ledger, entry)
			}

			_, err := tx.Exec(`
UPDATE change_feed SET current_watermark = NULL
WHERE partition_key = ? AND study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ?`,
				row.PartitionKey, row.StudyInstanceUID, row.SeriesInstanceUID, row.SOPInstanceUID)
			if err != nil {
				return err
			}

			if models.InstanceStatus(row.Status) != models.InstanceStatusCreated {
				continue
			}
			original := row.Watermark
			if row.OriginalWatermark != nil {
				original = *row.OriginalWatermark
			}
			_, err = tx.Model(&models.ChangeFeedEntry{
				Timestamp:         now,
				Action:            models.ChangeFeedActionDelete,
				PartitionKey:      row.PartitionKey,
				StudyInstanceUID:  row.StudyInstanceUID,
				SeriesInstanceUID: row.SeriesInstanceUID,
				SOPInstanceUID:    row.SOPInstanceUID,
				OriginalWatermark: original,
			}).Insert()
			if err != nil {
				return err
			}
		}

		var emptySeries []int64
		_, err = tx.Query(&emptySeries, `
DELETE FROM series s
WHERE s.series_key IN (?) AND NOT EXISTS (SELECT 1 FROM instance i WHERE i.series_key = s.series_key)
RETURNING s.series_key`, pg.In(seriesKeys))
		if err != nil {
			return err
		}
		if err := deleteQueryTagValues(tx, "series_key", emptySeries); err != nil {
			return err
		}

		var emptyStudies []int64
		_, err = tx.Query(&emptyStudies, `
DELETE FROM study st
WHERE st.study_key IN (?) AND NOT EXISTS (SELECT 1 FROM series se WHERE se.study_key = st.study_key)
RETURNING st.study_key`, pg.In(studyKeys))
		if err != nil {
			return err
		}
		return deleteQueryTagValues(tx, "study_key", emptyStudies)
	})
	if err != nil {
		return nil, err
	}
	return ledger, nil
}
