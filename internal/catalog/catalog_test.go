package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := Default()
	require.Equal(t, 43, c.Len())
	assert.Same(t, c, Default())

	limits := c.SpeedLimits()
	require.Len(t, limits, 8)
	for _, e := range limits {
		require.NotNil(t, e.LimitKPH)
		assert.Equal(t, CategorySpeedLimit, e.Category)
	}
}

func TestLookup(t *testing.T) {
	c := Default()
	e, err := c.Lookup(3)
	require.NoError(t, err)
	assert.Equal(t, "speed_limit_60", e.Name)
	assert.True(t, e.IsSpeedLimit())
	assert.Equal(t, 60, *e.LimitKPH)

	e, err = c.Lookup(32)
	require.NoError(t, err)
	assert.Equal(t, KindEndAllLimits, e.Kind)
	assert.False(t, e.IsSpeedLimit())

	e, err = c.Lookup(14)
	require.NoError(t, err)
	assert.Equal(t, CategoryWarning, e.Category)
	assert.Equal(t, KindNone, e.Kind)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Default().Lookup(99)
	require.Error(t, err)
	var unknown *UnknownSignClassError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, 99, unknown.ClassID)
	assert.True(t, errors.Is(err, ErrUnknownSignClass))
}

func TestResolveNamesAndAliases(t *testing.T) {
	c := Default()
	tests := []struct {
		name string
		want int
	}{
		{"speed_limit_60", 3},
		{"Speed Limit 60", 3},
		{"stop", 14},
		{"end_of_all_limits", 32},
		{"end-all-limits", 32},
		{"end_of_limit_80", 6},
		{"40", 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := c.Resolve(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.ID)
		})
	}

	_, err := c.Resolve("speed_limit_65")
	require.ErrorIs(t, err, ErrUnknownSignClass)
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New([]Entry{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}})
	require.Error(t, err)

	_, err = New([]Entry{{ID: 1, Name: "limit", Kind: KindLimit}})
	require.Error(t, err)

	_, err = New([]Entry{{ID: 1, Name: "a"}, {ID: 2, Name: "b", Aliases: []string{"A"}}})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `classes:
  - class_id: 100
    name: speed_limit_40
    category: speed_limit
    kind: limit
    limit_kph: 40
  - class_id: 101
    name: school_zone
    category: warning
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	e, err := c.Resolve("speed_limit_40")
	require.NoError(t, err)
	assert.Equal(t, 40, *e.LimitKPH)

	c, err = LoadFile("")
	require.NoError(t, err)
	assert.Same(t, Default(), c)
}
