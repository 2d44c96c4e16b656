package migrate

import (
	"github.com/go-pg/migrations"
)

const changeFeedTable = `
CREATE TABLE change_feed (
sequence bigserial NOT NULL,
timestamp timestamp with time zone NOT NULL DEFAULT current_timestamp,
action smallint NOT NULL,
partition_key int NOT NULL,
study_instance_uid varchar(64) NOT NULL,
series_instance_uid varchar(64) NOT NULL,
sop_instance_uid varchar(64) NOT NULL,
original_watermark bigint NOT NULL,
current_watermark bigint,

PRIMARY KEY (sequence)
)`

const deletedInstanceTable = `
CREATE TABLE deleted_instance (
partition_key int NOT NULL,
study_instance_uid varchar(64) NOT NULL,
series_instance_uid varchar(64) NOT NULL,
sop_instance_uid varchar(64) NOT NULL,
watermark bigint NOT NULL,
deleted_date timestamp with time zone NOT NULL DEFAULT current_timestamp,
retry_count int NOT NULL DEFAULT 0,
cleanup_after timestamp with time zone NOT NULL,
file_path varchar(4096),
etag varchar(4000),

PRIMARY KEY (partition_key, study_instance_uid, series_instance_uid, sop_instance_uid, watermark)
)`

func init() {
	up := []string{
		changeFeedTable,
		`CREATE INDEX change_feed_instance_idx ON change_feed (partition_key, study_instance_uid, series_instance_uid, sop_instance_uid)`,
		`CREATE INDEX change_feed_timestamp_idx ON change_feed (timestamp, sequence)`,
		deletedInstanceTable,
		`CREATE INDEX deleted_instance_cleanup_idx ON deleted_instance (retry_count, cleanup_after)`,
	}

	down := []string{
		`DROP TABLE deleted_instance`,
		`DROP TABLE change_feed`,
	}

	migrations.Register(func(db migrations.DB) error {
		logger().Info("create change feed tables")
		return exec(db, up)
	}, func(db migrations.DB) error {
		logger().Info("drop change feed tables")
		return exec(db, down)
	})
}
