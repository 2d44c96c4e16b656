package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
)

type updateRow struct {
	InstanceKey       int64  `sql:"instance_key"`
	PartitionKey      int    `sql:"partition_key"`
	StudyInstanceUID  string `sql:"study_instance_uid"`
	SeriesInstanceUID string `sql:"series_instance_uid"`
	SOPInstanceUID    string `sql:"sop_instance_uid"`
	Watermark         int64  `sql:"watermark"`
	OriginalWatermark *int64 `sql:"original_watermark"`
	NewWatermark      *int64 `sql:"new_watermark"`
}

func (r updateRow) identifier() models.InstanceIdentifier {
	return models.InstanceIdentifier{
		PartitionKey:      r.PartitionKey,
		StudyInstanceUID:  r.StudyInstanceUID,
		SeriesInstanceUID: r.SeriesInstanceUID,
		SOPInstanceUID:    r.SOPInstanceUID,
	}
}

const selectUpdateRowsQuery = `
SELECT instance_key, partition_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark, original_watermark, new_watermark
FROM instance
WHERE partition_key = ? AND study_instance_uid = ? AND status = ?`

// BeginUpdateInstances assigns a new version watermark to every Created
// instance of a study and copies its file properties forward. Versions left
// behind by an earlier update that never ended are queued for cleanup.
func (s *IndexStore) BeginUpdateInstances(ctx context.Context, partitionKey int, studyInstanceUID string) ([]models.InstanceMetadata, error) {
	var result []models.InstanceMetadata
	err := s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		result = nil

		var rows []updateRow
		_, err := tx.Query(&rows, selectUpdateRowsQuery+" ORDER BY watermark ASC FOR UPDATE",
			partitionKey, studyInstanceUID, models.InstanceStatusCreated)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return models.ErrStudyNotFound
		}

		now := time.Now().UTC()
		for _, row := range rows {
			if row.NewWatermark == nil {
				continue
			}
			var files []deletedFile
			_, err := tx.Query(&files, `DELETE FROM file_property WHERE watermark = ? RETURNING watermark, file_path, etag`, *row.NewWatermark)
			if err != nil {
				return err
			}
			var file *deletedFile
			if len(files) > 0 {
				file = &files[0]
			}
			if _, err := insertDeletedInstance(tx, row.identifier(), *row.NewWatermark, file, now, now); err != nil {
				return err
			}
		}

		var watermarks []int64
		_, err = tx.Query(&watermarks, `SELECT nextval('watermark_sequence') FROM generate_series(1, ?)`, len(rows))
		if err != nil {
			return err
		}
		if len(watermarks) != len(rows) {
			return fmt.Errorf("allocated %d watermarks for %d instances", len(watermarks), len(rows))
		}

		for i, row := range rows {
			newWatermark := watermarks[i]
			_, err := tx.Exec(`UPDATE instance SET new_watermark = ? WHERE instance_key = ?`, newWatermark, row.InstanceKey)
			if err != nil {
				return err
			}

			metadata := models.InstanceMetadata{
				VersionedInstanceIdentifier: models.VersionedInstanceIdentifier{
					InstanceIdentifier: row.identifier(),
					Version:            row.Watermark,
				},
				OriginalVersion: row.OriginalWatermark,
				NewVersion:      newWatermark,
			}

			fp := &models.FileProperties{}
			err = tx.Model(fp).Where("watermark = ?", row.Watermark).Select()
			switch {
			case err == pg.ErrNoRows:
			case err != nil:
				return err
			default:
				metadata.FileProperties = fp
				copied := *fp
				copied.Watermark = newWatermark
				if _, err := tx.Model(&copied).Insert(); err != nil {
					return fmt.Errorf("copy file properties: %w", err)
				}
			}

			result = append(result, metadata)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EndUpdateInstances commits the versions handed out by
// BeginUpdateInstances. fileProperties is keyed by new watermark. studyPatch
// maps study columns to their corrected value.
func (s *IndexStore) EndUpdateInstances(ctx context.Context, partitionKey int, studyInstanceUID string, studyPatch map[string]string, fileProperties map[int64]*models.FileProperties) error {
	columns := make([]string, 0, len(studyPatch))
	for column := range studyPatch {
		if !isStudyMergeColumn(column) {
			return fmt.Errorf("study column %q cannot be updated", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	return s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		var rows []updateRow
		_, err := tx.Query(&rows, selectUpdateRowsQuery+" AND new_watermark IS NOT NULL ORDER BY watermark ASC FOR UPDATE",
			partitionKey, studyInstanceUID, models.InstanceStatusCreated)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return models.ErrStudyNotFound
		}

		now := time.Now().UTC()
		var maxWatermark int64
		for _, row := range rows {
			newWatermark := *row.NewWatermark
			if newWatermark > maxWatermark {
				maxWatermark = newWatermark
			}

			// the original version is kept, a superseded intermediate one is not
			if row.OriginalWatermark != nil {
				var files []deletedFile
				_, err := tx.Query(&files, `DELETE FROM file_property WHERE watermark = ? RETURNING watermark, file_path, etag`, row.Watermark)
				if err != nil {
					return err
				}
				var file *deletedFile
				if len(files) > 0 {
					file = &files[0]
				}
				if _, err := insertDeletedInstance(tx, row.identifier(), row.Watermark, file, now, now); err != nil {
					return err
				}
			}

			_, err := tx.Exec(`
UPDATE instance
SET original_watermark = COALESCE(original_watermark, watermark), watermark = new_watermark, new_watermark = NULL, last_status_update_at = ?
WHERE instance_key = ?`, now, row.InstanceKey)
			if err != nil {
				return err
			}

			if fp, ok := fileProperties[newWatermark]; ok && fp != nil {
				_, err := tx.Exec(`UPDATE file_property SET file_path = ?, etag = ?, content_length = ? WHERE watermark = ?`,
					fp.Path, fp.ETag, fp.ContentLength, newWatermark)
				if err != nil {
					return err
				}
			}

			_, err = tx.Exec(`
UPDATE change_feed SET current_watermark = ?
WHERE partition_key = ? AND study_instance_uid = ? AND series_instance_uid = ? AND sop_instance_uid = ? AND current_watermark IS NOT NULL`,
				newWatermark, row.PartitionKey, row.StudyInstanceUID, row.SeriesInstanceUID, row.SOPInstanceUID)
			if err != nil {
				return err
			}
		}

		if len(columns) == 0 {
			return nil
		}
		sets := make([]string, 0, len(columns)+2)
		params := make([]interface{}, 0, len(columns)+4)
		for _, column := range columns {
			sets = append(sets, column+" = ?")
			params = append(params, studyPatch[column])
		}
		sets = append(sets, "watermark = GREATEST(watermark, ?)", "updated_at = ?")
		params = append(params, maxWatermark, now, partitionKey, studyInstanceUID)
		_, err = tx.Exec(fmt.Sprintf(`UPDATE study SET %s WHERE partition_key = ? AND study_instance_uid = ?`, strings.Join(sets, ", ")), params...)
		return err
	})
}

func isStudyMergeColumn(column string) bool {
	for _, c := range studyMergeColumns {
		if c == column {
			return true
		}
	}
	return false
}
