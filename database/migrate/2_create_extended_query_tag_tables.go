package migrate

import (
	"fmt"

	"github.com/go-pg/migrations"
)

const extendedQueryTagTable = `
CREATE TABLE extended_query_tag (
tag_key serial NOT NULL,
tag_path varchar(64) NOT NULL,
tag_vr varchar(2) NOT NULL,
tag_private_creator varchar(64),
tag_level smallint NOT NULL,
tag_status smallint NOT NULL,
query_status smallint NOT NULL DEFAULT 1,
operation_id uuid,
error_count int NOT NULL DEFAULT 0,
created_at timestamp with time zone NOT NULL DEFAULT current_timestamp,

PRIMARY KEY (tag_key),
UNIQUE (tag_path)
)`

// value tables share the key layout; absent series and instance keys are 0
const extendedQueryTagValueTable = `
CREATE TABLE %s (
tag_key int NOT NULL,
partition_key int NOT NULL,
study_key bigint NOT NULL,
series_key bigint NOT NULL DEFAULT 0,
instance_key bigint NOT NULL DEFAULT 0,
%s
watermark bigint NOT NULL,

PRIMARY KEY (tag_key, partition_key, study_key, series_key, instance_key)
)`

var extendedQueryTagValueColumns = map[string]string{
	"extended_query_tag_string":   "tag_value varchar(64) NOT NULL,",
	"extended_query_tag_long":     "tag_value bigint NOT NULL,",
	"extended_query_tag_double":   "tag_value double precision NOT NULL,",
	"extended_query_tag_datetime": "tag_value timestamp NOT NULL,",
	"extended_query_tag_person_name": `tag_value varchar(200) NOT NULL,
family_name varchar(64),
given_name varchar(200),`,
}

var extendedQueryTagValueTables = []string{
	"extended_query_tag_string",
	"extended_query_tag_long",
	"extended_query_tag_double",
	"extended_query_tag_datetime",
	"extended_query_tag_person_name",
}

func init() {
	up := []string{extendedQueryTagTable}
	down := []string{}
	for _, table := range extendedQueryTagValueTables {
		up = append(up,
			fmt.Sprintf(extendedQueryTagValueTable, table, extendedQueryTagValueColumns[table]),
			fmt.Sprintf(`CREATE INDEX %s_study_key_idx ON %s (study_key, series_key)`, table, table),
		)
		down = append(down, fmt.Sprintf(`DROP TABLE %s`, table))
	}
	down = append(down, `DROP TABLE extended_query_tag`)

	migrations.Register(func(db migrations.DB) error {
		logger().Info("create extended query tag tables")
		return exec(db, up)
	}, func(db migrations.DB) error {
		logger().Info("drop extended query tag tables")
		return exec(db, down)
	})
}
