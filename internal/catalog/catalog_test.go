package catalog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/laurel/internal/model"
	"github.com/alfredjeanlab/laurel/internal/store/storetest"
)

func TestLoadFile(t *testing.T) {
	badges, err := LoadFile("testdata/badges.yaml")
	require.NoError(t, err)
	require.Len(t, badges, 4)

	assert.Equal(t, model.BadgeDefinition{
		ID: 1, Category: "cooked", TargetValue: 3, DisplayName: "Home Cook", Description: "Cook three recipes.",
	}, badges[0])
	assert.True(t, badges[2].Repeatable)
}

func TestLoad_Rejects(t *testing.T) {
	for _, tc := range []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "UnknownField",
			doc:     "badges:\n  - badge_id: 1\n    category: cooked\n    target_value: 3\n    display_name: A\n    targt: 4\n",
			wantErr: "targt",
		},
		{
			name:    "ZeroTarget",
			doc:     "badges:\n  - badge_id: 1\n    category: cooked\n    target_value: 0\n    display_name: A\n",
			wantErr: "Badges[0].TargetValue failed gte",
		},
		{
			name:    "MissingCategory",
			doc:     "badges:\n  - badge_id: 1\n    target_value: 2\n    display_name: A\n",
			wantErr: "Badges[0].Category failed required",
		},
		{
			name:    "Duplicate",
			doc:     "badges:\n  - {badge_id: 1, category: a, target_value: 1, display_name: A}\n  - {badge_id: 1, category: b, target_value: 1, display_name: B}\n",
			wantErr: "duplicate badge_id 1",
		},
		{
			name:    "NoBadges",
			doc:     "badges: []\n",
			wantErr: "Badges failed min",
		},
		{
			name:    "Empty",
			doc:     "",
			wantErr: "empty document",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSeedAndList(t *testing.T) {
	s := storetest.New()
	ctx := context.Background()

	badges, err := LoadFile("testdata/badges.yaml")
	require.NoError(t, err)

	n, err := Seed(ctx, s, badges)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Reseeding updates in place.
	badges[0].TargetValue = 5
	_, err = Seed(ctx, s, badges[:1])
	require.NoError(t, err)

	all, err := List(ctx, s, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, int64(5), all[0].TargetValue)

	ranks, err := List(ctx, s, model.CategoryRanks)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	assert.Equal(t, int64(3), ranks[0].ID)
	assert.Equal(t, int64(4), ranks[1].ID)
}

func TestSeed_RollsBackOnError(t *testing.T) {
	s := storetest.New()
	boom := errors.New("disk full")
	s.Fail("UpsertBadge", boom)

	_, err := Seed(context.Background(), s, []model.BadgeDefinition{{ID: 1, Category: "cooked", TargetValue: 1, DisplayName: "A"}})
	require.ErrorIs(t, err, boom)

	s.Fail("UpsertBadge", nil)
	all, err := List(context.Background(), s, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []*model.BadgeDefinition{
		{ID: 1, Category: "cooked", TargetValue: 3, DisplayName: "Home Cook"},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "Home Cook")
}
