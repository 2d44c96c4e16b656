package database

import (
	"context"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
)

const contentLengthBackFillBatchesQuery = `
SELECT MIN(watermark) AS start_watermark, MAX(watermark) AS end_watermark
FROM (
	SELECT fp.watermark, (ROW_NUMBER() OVER (ORDER BY fp.watermark DESC) - 1) / ? AS batch
	FROM file_property fp
	JOIN instance i ON i.watermark = fp.watermark
	WHERE fp.content_length = 0 AND i.status = ?
) AS t
GROUP BY batch
ORDER BY batch ASC
LIMIT ?`

// GetContentLengthBackFillInstanceBatches splits the Created instances whose
// content length is still unknown into ranges of batchSize rows.
func (s *IndexStore) GetContentLengthBackFillInstanceBatches(ctx context.Context, batchSize, batchCount int) ([]models.WatermarkRange, error) {
	var ranges []models.WatermarkRange
	_, err := s.db.WithContext(ctx).Query(&ranges, contentLengthBackFillBatchesQuery, batchSize, models.InstanceStatusCreated, batchCount)
	return ranges, err
}

// GetContentLengthBackFillInstanceIdentifiersByWatermarkRange lists the
// instances inside r that still have an unknown content length.
func (s *IndexStore) GetContentLengthBackFillInstanceIdentifiersByWatermarkRange(ctx context.Context, r models.WatermarkRange) ([]models.VersionedInstanceIdentifier, error) {
	var ids []models.VersionedInstanceIdentifier
	_, err := s.db.WithContext(ctx).Query(&ids, `
SELECT i.partition_key, i.study_instance_uid, i.series_instance_uid, i.sop_instance_uid, i.watermark
FROM file_property fp
JOIN instance i ON i.watermark = fp.watermark
WHERE fp.watermark BETWEEN ? AND ? AND fp.content_length = 0 AND i.status = ?
ORDER BY fp.watermark ASC`, r.Start, r.End, models.InstanceStatusCreated)
	return ids, err
}

// UpdateFilePropertiesContentLength sets the content length of the file
// properties keyed by watermark. Rows that already have a length are left
// alone.
func (s *IndexStore) UpdateFilePropertiesContentLength(ctx context.Context, lengths map[int64]int64) error {
	if len(lengths) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).RunInTransaction(func(tx *pg.Tx) error {
		for watermark, length := range lengths {
			_, err := tx.Exec(`UPDATE file_property SET content_length = ? WHERE watermark = ? AND content_length = 0`, length, watermark)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
