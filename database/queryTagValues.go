package database

import (
	"fmt"

	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
)

var queryTagValueTables = map[models.ExtendedQueryTagDataType]string{
	models.DataTypeString:     "extended_query_tag_string",
	models.DataTypeLong:       "extended_query_tag_long",
	models.DataTypeDouble:     "extended_query_tag_double",
	models.DataTypeDateTime:   "extended_query_tag_datetime",
	models.DataTypePersonName: "extended_query_tag_person_name",
}

// the value is only replaced by a writer with a newer watermark
const upsertQueryTagValueQuery = `
INSERT INTO %s AS t (tag_key, partition_key, study_key, series_key, instance_key, tag_value, watermark)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tag_key, partition_key, study_key, series_key, instance_key)
DO UPDATE SET tag_value = EXCLUDED.tag_value, watermark = EXCLUDED.watermark
WHERE t.watermark < EXCLUDED.watermark`

const upsertPersonNameValueQuery = `
INSERT INTO extended_query_tag_person_name AS t (tag_key, partition_key, study_key, series_key, instance_key, tag_value, family_name, given_name, watermark)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (tag_key, partition_key, study_key, series_key, instance_key)
DO UPDATE SET tag_value = EXCLUDED.tag_value, family_name = EXCLUDED.family_name, given_name = EXCLUDED.given_name, watermark = EXCLUDED.watermark
WHERE t.watermark < EXCLUDED.watermark`

// instanceKeys locates an instance and its parents.
type instanceKeys struct {
	PartitionKey int   `sql:"partition_key"`
	StudyKey     int64 `sql:"study_key"`
	SeriesKey    int64 `sql:"series_key"`
	InstanceKey  int64 `sql:"instance_key"`
}

// forLevel returns the series and instance keys of a value row at level.
// Keys below the level are 0.
func (k instanceKeys) forLevel(level models.QueryTagLevel) (seriesKey, instanceKey int64) {
	switch level {
	case models.QueryTagLevelStudy:
		return 0, 0
	case models.QueryTagLevelSeries:
		return k.SeriesKey, 0
	default:
		return k.SeriesKey, k.InstanceKey
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// upsertQueryTagValues writes values for an instance. Rows already written
// by a newer watermark are left untouched.
func upsertQueryTagValues(db orm.DB, keys instanceKeys, values []*utils.QueryTagValue, watermark int64) error {
	for _, value := range values {
		queryTag := value.QueryTag
		if queryTag.ExtendedQueryTagKey == 0 {
			continue
		}
		seriesKey, instanceKey := keys.forLevel(queryTag.Level)

		var err error
		switch queryTag.DataType() {
		case models.DataTypePersonName:
			_, err = db.Exec(upsertPersonNameValueQuery,
				queryTag.ExtendedQueryTagKey, keys.PartitionKey, keys.StudyKey, seriesKey, instanceKey,
				value.Raw, nullableString(value.PersonName.Family), nullableString(value.PersonName.GivenNames()), watermark)
		default:
			var column interface{}
			switch queryTag.DataType() {
			case models.DataTypeLong:
				column = value.Long
			case models.DataTypeDouble:
				column = value.Double
			case models.DataTypeDateTime:
				column = value.DateTime
			default:
				column = value.String
			}
			_, err = db.Exec(fmt.Sprintf(upsertQueryTagValueQuery, queryTagValueTables[queryTag.DataType()]),
				queryTag.ExtendedQueryTagKey, keys.PartitionKey, keys.StudyKey, seriesKey, instanceKey, column, watermark)
		}
		if err != nil {
			return fmt.Errorf("write query tag %s: %w", queryTag.Path, err)
		}
	}
	return nil
}

// deleteQueryTagValues removes every value row whose column is one of keys.
func deleteQueryTagValues(db orm.DB, column string, keys []int64) error {
	if len(keys) == 0 {
		return nil
	}
	for _, table := range queryTagValueTables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", table, column), pg.In(keys)); err != nil {
			return err
		}
	}
	return nil
}
