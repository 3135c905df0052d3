package dataset

import (
	"github.com/roach88/filesync/internal/detect"
)

// Summary column names, in dataset order.
const (
	ColDate             = "DATE"
	ColFileName         = "FILE_NAME"
	ColFileExistsInS3   = "FILE_EXISTS_IN_S3"
	ColContentsModified = "CONTENTS_MODIFIED"
	ColModifiedFileName = "MODIFIED_FILE_NAME"
)

// SummaryColumns is the column layout produced by Materialize.
var SummaryColumns = []string{
	ColDate,
	ColFileName,
	ColFileExistsInS3,
	ColContentsModified,
	ColModifiedFileName,
}

// DateLayout formats the processing time of each row.
const DateLayout = "20060102-150405"

// Blank fills cells that do not apply to a row.
const Blank = ""

// Materialize builds the run summary: one row per result, in result order.
func Materialize(results []detect.Result) Dataset {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		row := []string{
			r.ProcessedAt.Format(DateLayout),
			r.Artifact.Name,
			"True",
			Blank,
			Blank,
		}
		switch r.Classification {
		case detect.New:
			row[2] = "False"
		case detect.Unchanged:
			row[3] = "False"
		case detect.Modified:
			row[3] = "True"
			row[4] = r.VersionedName
		}
		rows = append(rows, row)
	}
	return Dataset{Columns: append([]string(nil), SummaryColumns...), Rows: rows}
}
