package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalVerParseYearMonth(t *testing.T) {
	s := NewCalVerStrategy()
	v, err := s.Parse("2024.1.0")
	require.NoError(t, err)
	assert.Equal(t, uint64(2024), v.Major)
	assert.Equal(t, uint64(1), v.Minor)
	assert.Equal(t, uint64(0), v.Patch)
}

func TestCalVerParseShortYear(t *testing.T) {
	s := NewCalVerStrategy().WithCalVerFormat(ShortYearMonth)
	v, err := s.Parse("24.1.0")
	require.NoError(t, err)
	assert.Equal(t, uint64(24), v.Major)
	assert.Equal(t, uint64(1), v.Minor)
}

func TestCalVerFormat(t *testing.T) {
	s := NewCalVerStrategy()
	v := Components{Major: 2024, Minor: 1, Patch: 5}
	assert.Equal(t, "2024.1.5", s.FormatVersion(v))

	padded := NewCalVerStrategy().WithCalVerFormat(YearMonthPadded)
	assert.Equal(t, "2024.01.5", padded.FormatVersion(v))
}

func TestCalVerBumpSamePeriod(t *testing.T) {
	fixedNow := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := NewCalVerStrategy()
	s.now = func() time.Time { return fixedNow }

	current := Components{Major: 2024, Minor: 3, Patch: 5}
	bumped, err := s.Bump(current, Patch)
	require.NoError(t, err)
	assert.Equal(t, uint64(2024), bumped.Major)
	assert.Equal(t, uint64(3), bumped.Minor)
	assert.Equal(t, uint64(6), bumped.Patch)
}

func TestCalVerBumpNewPeriod(t *testing.T) {
	fixedNow := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	s := NewCalVerStrategy()
	s.now = func() time.Time { return fixedNow }

	current := Components{Major: 2020, Minor: 1, Patch: 99}
	bumped, err := s.Bump(current, Patch)
	require.NoError(t, err)
	assert.Equal(t, uint64(2024), bumped.Major)
	assert.Equal(t, uint64(3), bumped.Minor)
	assert.Equal(t, uint64(0), bumped.Patch)
}

func TestCalVerBumpRejectsMajorMinor(t *testing.T) {
	s := NewCalVerStrategy()
	_, err := s.Bump(Components{Major: 2024, Minor: 3}, Major)
	assert.ErrorIs(t, err, ErrCalVerBumpTypeUnsupported)

	_, err = s.Bump(Components{Major: 2024, Minor: 3}, Minor)
	assert.ErrorIs(t, err, ErrCalVerBumpTypeUnsupported)
}

func TestCalVerCompare(t *testing.T) {
	s := NewCalVerStrategy()
	cmp, err := s.Compare("2024.1.0", "2024.1.1")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = s.Compare("2024.2.0", "2024.1.5")
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = s.Compare("2024.1.0", "2024.1.0")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)
}

func TestCalVerYearMicroFormat(t *testing.T) {
	s := NewCalVerStrategy().WithCalVerFormat(YearMicro)
	v, err := s.Parse("2024.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(2024), v.Major)
	assert.Equal(t, uint64(5), v.Minor)
	assert.Equal(t, "2024.5", s.FormatVersion(v))
}
