// Package archive writes finished contest rankings to durable storage as
// JSONL.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/alfredjeanlab/laurel/internal/model"
)

// Destination stores one named JSONL object.
type Destination interface {
	Write(ctx context.Context, key string, data []byte) error
}

// Archiver exports contest results to a Destination under a key prefix.
type Archiver struct {
	dest   Destination
	prefix string
}

func NewArchiver(dest Destination, prefix string) *Archiver {
	return &Archiver{dest: dest, prefix: prefix}
}

// Key returns the object key for a contest.
func (a *Archiver) Key(contestID int64) string {
	return path.Join(a.prefix, fmt.Sprintf("contest-%d.jsonl", contestID))
}

// Archive encodes the results and writes them to the destination.
func (a *Archiver) Archive(ctx context.Context, contestID int64, results []model.ContestResult) error {
	var buf bytes.Buffer
	if err := ExportContestJSONL(&buf, contestID, results); err != nil {
		return err
	}
	if err := a.dest.Write(ctx, a.Key(contestID), buf.Bytes()); err != nil {
		return fmt.Errorf("archive contest %d: %w", contestID, err)
	}
	return nil
}
