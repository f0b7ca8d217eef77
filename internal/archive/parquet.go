package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/asksql/asksql/internal/memory"
)

type EncodeResult struct {
	Data         []byte
	RecordCount  int64
	MinCreatedAt *time.Time
	MaxCreatedAt *time.Time
}

type historyRow struct {
	ID              string `parquet:"id"`
	Question        string `parquet:"question"`
	SQL             string `parquet:"sql_query"`
	Summary         string `parquet:"summary"`
	ColumnsJSON     string `parquet:"columns_json"`
	RowsJSON        string `parquet:"rows_json"`
	ChartJSON       string `parquet:"chart_json"`
	RowCount        int64  `parquet:"row_count"`
	Truncated       bool   `parquet:"truncated"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// EncodeEntries writes one Parquet row per cache entry. Columns, rows and the
// chart suggestion are kept as JSON text since their shape varies per entry.
func EncodeEntries(entries []memory.Entry) (EncodeResult, error) {
	if len(entries) == 0 {
		return EncodeResult{}, fmt.Errorf("entries are required")
	}

	rows := make([]historyRow, 0, len(entries))
	var minTime *time.Time
	var maxTime *time.Time
	for _, entry := range entries {
		columns, err := json.Marshal(entry.Columns)
		if err != nil {
			return EncodeResult{}, fmt.Errorf("marshal columns of entry %s: %w", entry.ID, err)
		}
		resultRows, err := json.Marshal(entry.Rows)
		if err != nil {
			return EncodeResult{}, fmt.Errorf("marshal rows of entry %s: %w", entry.ID, err)
		}

		rows = append(rows, historyRow{
			ID:              entry.ID,
			Question:        entry.Question,
			SQL:             entry.SQL,
			Summary:         entry.Summary,
			ColumnsJSON:     string(columns),
			RowsJSON:        string(resultRows),
			ChartJSON:       string(entry.Chart),
			RowCount:        int64(len(entry.Rows)),
			Truncated:       entry.Truncated,
			CreatedAtUnixMs: entry.CreatedAt.UnixMilli(),
		})

		if !entry.CreatedAt.IsZero() {
			created := entry.CreatedAt.UTC()
			if minTime == nil || created.Before(*minTime) {
				copy := created
				minTime = &copy
			}
			if maxTime == nil || created.After(*maxTime) {
				copy := created
				maxTime = &copy
			}
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[historyRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:         buf.Bytes(),
		RecordCount:  int64(len(rows)),
		MinCreatedAt: minTime,
		MaxCreatedAt: maxTime,
	}, nil
}
