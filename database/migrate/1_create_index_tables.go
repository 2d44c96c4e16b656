package migrate

import (
	"github.com/go-pg/migrations"
)

const watermarkSequence = `
CREATE SEQUENCE watermark_sequence AS bigint START WITH 1 INCREMENT BY 1`

const studyTable = `
CREATE TABLE study (
study_key bigserial NOT NULL,
partition_key int NOT NULL DEFAULT 1,
watermark bigint NOT NULL,
created_at timestamp with time zone NOT NULL DEFAULT current_timestamp,
updated_at timestamp with time zone NOT NULL DEFAULT current_timestamp,

study_instance_uid varchar(64) NOT NULL,
patient_id varchar(64) NOT NULL,
patient_name varchar(200),
patient_birth_date varchar(8),
referring_physician_name varchar(200),
study_date varchar(8),
study_description varchar(64),
accession_number varchar(16),

PRIMARY KEY (study_key),
UNIQUE (partition_key, study_instance_uid)
)`

const seriesTable = `
CREATE TABLE series (
series_key bigserial NOT NULL,
study_key bigint NOT NULL REFERENCES study (study_key),
partition_key int NOT NULL DEFAULT 1,
watermark bigint NOT NULL,
created_at timestamp with time zone NOT NULL DEFAULT current_timestamp,
updated_at timestamp with time zone NOT NULL DEFAULT current_timestamp,

series_instance_uid varchar(64) NOT NULL,
modality varchar(16),
series_number varchar(12),
performed_procedure_step_start_date varchar(8),

PRIMARY KEY (series_key),
UNIQUE (partition_key, study_key, series_instance_uid)
)`

const instanceTable = `
CREATE TABLE instance (
instance_key bigserial NOT NULL,
partition_key int NOT NULL DEFAULT 1,
study_key bigint NOT NULL REFERENCES study (study_key),
series_key bigint NOT NULL REFERENCES series (series_key),

study_instance_uid varchar(64) NOT NULL,
series_instance_uid varchar(64) NOT NULL,
sop_instance_uid varchar(64) NOT NULL,
sop_class_uid varchar(64) NOT NULL,
transfer_syntax_uid varchar(64),

watermark bigint NOT NULL,
original_watermark bigint,
new_watermark bigint,
status smallint NOT NULL,
created_at timestamp with time zone NOT NULL DEFAULT current_timestamp,
last_status_update_at timestamp with time zone NOT NULL DEFAULT current_timestamp,

PRIMARY KEY (instance_key),
UNIQUE (partition_key, study_instance_uid, series_instance_uid, sop_instance_uid),
UNIQUE (watermark)
)`

const filePropertyTable = `
CREATE TABLE file_property (
watermark bigint NOT NULL,
instance_key bigint NOT NULL,
file_path varchar(4096) NOT NULL,
etag varchar(4000) NOT NULL,
content_length bigint NOT NULL DEFAULT 0,

PRIMARY KEY (watermark)
)`

var indexTableIndexes = []string{
	`CREATE INDEX series_study_key_idx ON series (study_key)`,
	`CREATE INDEX instance_series_key_idx ON instance (series_key)`,
	`CREATE INDEX instance_study_key_idx ON instance (study_key)`,
	`CREATE INDEX instance_status_created_at_idx ON instance (status, created_at)`,
	`CREATE INDEX file_property_instance_key_idx ON file_property (instance_key)`,
	`CREATE INDEX file_property_unknown_length_idx ON file_property (watermark) WHERE content_length = 0`,
}

func init() {
	up := []string{
		watermarkSequence,
		studyTable,
		seriesTable,
		instanceTable,
		filePropertyTable,
	}
	up = append(up, indexTableIndexes...)

	down := []string{
		`DROP TABLE file_property`,
		`DROP TABLE instance`,
		`DROP TABLE series`,
		`DROP TABLE study`,
		`DROP SEQUENCE watermark_sequence`,
	}

	migrations.Register(func(db migrations.DB) error {
		logger().Info("create index tables")
		return exec(db, up)
	}, func(db migrations.DB) error {
		logger().Info("drop index tables")
		return exec(db, down)
	})
}
