package database

import (
	"dicom-object-store/models"

	"github.com/go-pg/pg/orm"
)

// upsertSeries inserts series or merges it into the existing row of its
// study and loads the series key.
func upsertSeries(db orm.DB, series *models.Series) error {
	q := db.Model(series).OnConflict("(partition_key, study_key, series_instance_uid) DO UPDATE")
	for _, set := range mergeColumns("series", seriesMergeColumns) {
		q = q.Set(set)
	}
	_, err := q.Returning("series_key").Insert()
	return err
}
