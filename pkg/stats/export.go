package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportHeader names the export columns, in their stable order.
var ExportHeader = []string{
	"start_iso", "end_iso", "start_epoch", "end_epoch",
	"duration_seconds", "category", "platform", "url",
}

// ExportRows projects a subject's sessions into flat rows matching
// ExportHeader, ascending by start.
func (a *Aggregator) ExportRows(ctx context.Context, scopeID, subject string, period Period) ([][]string, error) {
	sessions, err := a.store.Query(ctx, scopeID, subject, period.Since(a.now()))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.Start.UTC().Format(time.RFC3339),
			s.End.UTC().Format(time.RFC3339),
			strconv.FormatInt(s.Start.Unix(), 10),
			strconv.FormatInt(s.End.Unix(), 10),
			strconv.FormatInt(s.DurationSeconds, 10),
			s.Category,
			s.Platform,
			s.URL,
		})
	}
	return rows, nil
}

// WriteCSV serializes export rows, header first.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
