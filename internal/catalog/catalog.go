// Package catalog loads badge definitions from a YAML file and seeds them
// into the store.
//
// The file lists every badge under a top-level "badges" key:
//
//	badges:
//	  - badge_id: 1
//	    category: cooked
//	    target_value: 3
//	    display_name: Home Cook
//
// Unknown keys are rejected so typos surface at load time.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store"
)

type file struct {
	Badges []model.BadgeDefinition `yaml:"badges" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadFile reads and validates a catalog file.
func LoadFile(path string) ([]model.BadgeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Load(bytes.NewReader(data))
}

// Load decodes a catalog strictly and checks every entry. Badge ids must be
// unique within the file.
func Load(r io.Reader) ([]model.BadgeDefinition, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse catalog: empty document")
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", describe(err))
	}

	seen := make(map[int64]bool, len(f.Badges))
	for _, b := range f.Badges {
		if seen[b.ID] {
			return nil, fmt.Errorf("invalid catalog: duplicate badge_id %d", b.ID)
		}
		seen[b.ID] = true
	}
	return f.Badges, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "file.Badges[2].TargetValue"; drop the root.
		ns := strings.TrimPrefix(fe.Namespace(), "file.")
		msgs = append(msgs, fmt.Sprintf("%s failed %s", ns, fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Seed upserts every definition in one transaction and returns how many
// were written.
func Seed(ctx context.Context, s store.Store, badges []model.BadgeDefinition) (int, error) {
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		for i := range badges {
			if err := tx.UpsertBadge(ctx, &badges[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	return len(badges), nil
}

// List returns the stored catalog, optionally narrowed to one category,
// ordered by badge id.
func List(ctx context.Context, s store.Store, category string) ([]*model.BadgeDefinition, error) {
	var (
		badges []*model.BadgeDefinition
		err    error
	)
	if category != "" {
		badges, err = s.ListBadgesByCategory(ctx, category)
	} else {
		badges, err = s.ListBadges(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	sort.Slice(badges, func(i, j int) bool { return badges[i].ID < badges[j].ID })
	return badges, nil
}

// WriteTable prints badges as an aligned table.
func WriteTable(w io.Writer, badges []*model.BadgeDefinition) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tTARGET\tREPEATABLE\tNAME")
	for _, b := range badges {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%t\t%s\n", b.ID, b.Category, b.TargetValue, b.Repeatable, b.DisplayName)
	}
	return tw.Flush()
}
