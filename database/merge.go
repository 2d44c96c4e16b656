package database

import "fmt"

// mergeColumn builds the ON CONFLICT SET clause of a last-non-null-wins
// column. The row written by the higher watermark decides which non-null
// value is kept, regardless of the order in which writers commit.
func mergeColumn(table, column string) string {
	return fmt.Sprintf(
		"%[2]s = CASE WHEN EXCLUDED.watermark >= %[1]s.watermark THEN COALESCE(EXCLUDED.%[2]s, %[1]s.%[2]s) ELSE COALESCE(%[1]s.%[2]s, EXCLUDED.%[2]s) END",
		table, column)
}

func mergeColumns(table string, columns []string) []string {
	clauses := make([]string, 0, len(columns)+2)
	for _, column := range columns {
		clauses = append(clauses, mergeColumn(table, column))
	}
	clauses = append(clauses,
		fmt.Sprintf("watermark = GREATEST(EXCLUDED.watermark, %s.watermark)", table),
		"updated_at = EXCLUDED.updated_at",
	)
	return clauses
}

var studyMergeColumns = []string{
	"patient_id",
	"patient_name",
	"patient_birth_date",
	"referring_physician_name",
	"study_date",
	"study_description",
	"accession_number",
}

var seriesMergeColumns = []string{
	"modality",
	"series_number",
	"performed_procedure_step_start_date",
}
