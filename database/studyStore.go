package database

import (
	"context"

	"dicom-object-store/models"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
)

// StudyStore reads study aggregates.
type StudyStore struct {
	db *pg.DB
}

// NewStudyStore returns a StudyStore implementation.
func NewStudyStore(db *pg.DB) *StudyStore {
	return &StudyStore{
		db: db,
	}
}

// Get gets a study by partition and study instance uid.
func (s *StudyStore) Get(ctx context.Context, partitionKey int, studyInstanceUID string) (*models.Study, error) {
	study := models.Study{}
	err := s.db.WithContext(ctx).Model(&study).
		Where("partition_key = ?", partitionKey).
		Where("study_instance_uid = ?", studyInstanceUID).
		Select()
	if err == pg.ErrNoRows {
		return nil, models.ErrStudyNotFound
	}
	return &study, err
}

// upsertStudy inserts study or merges it into the existing row and loads
// the study key.
func upsertStudy(db orm.DB, study *models.Study) error {
	q := db.Model(study).OnConflict("(partition_key, study_instance_uid) DO UPDATE")
	for _, set := range mergeColumns("study", studyMergeColumns) {
		q = q.Set(set)
	}
	_, err := q.Returning("study_key").Insert()
	return err
}
