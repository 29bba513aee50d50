// Package export writes observation history as CSV or JSON for
// spreadsheet and downstream-tool consumption.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Row is one exported observation.
type Row struct {
	Day        string `json:"day"`
	Time       string `json:"time"`
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	Title      string `json:"title"`
	Rank       int    `json:"rank"`
	URL        string `json:"url,omitempty"`
}

var csvHeader = []string{"day", "time", "source_id", "source_name", "title", "rank", "url"}

// CSV writes rows as RFC 4180 CSV with a header line.
func CSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Day, r.Time, r.SourceID, r.SourceName, r.Title, strconv.Itoa(r.Rank), r.URL}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSON writes rows as an indented JSON array. An empty slice still
// produces "[]", never "null".
func JSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("export: encode json: %w", err)
	}
	return nil
}
