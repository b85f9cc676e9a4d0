package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// header is the first JSONL record written by ExportContestJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	ContestID   int64     `json:"event_id"`
	Timestamp   time.Time `json:"timestamp"`
	ResultCount int       `json:"result_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportContestJSONL writes a header line followed by one line per result,
// in rank order.
func ExportContestJSONL(w io.Writer, contestID int64, results []model.ContestResult) error {
	sorted := append([]model.ContestResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })

	enc := json.NewEncoder(w)
	h := header{
		Version:     "1",
		Type:        "header",
		ContestID:   contestID,
		Timestamp:   time.Now().UTC(),
		ResultCount: len(sorted),
	}
	if err := enc.Encode(h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range sorted {
		if err := enc.Encode(record{Type: "result", Data: r}); err != nil {
			return fmt.Errorf("write result rank %d: %w", r.Rank, err)
		}
	}
	return nil
}
