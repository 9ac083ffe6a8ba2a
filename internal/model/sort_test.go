package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSort(t *testing.T) {
	s, err := ParseSort(" Hot ")
	require.NoError(t, err)
	assert.Equal(t, SortHot, s)

	_, err = ParseSort("sideways")
	assert.Error(t, err)
}

func TestSortNextCycles(t *testing.T) {
	seen := map[Sort]bool{}
	s := SortBest
	for range Sorts {
		seen[s] = true
		s = s.Next()
	}
	assert.Equal(t, SortBest, s)
	assert.Len(t, seen, len(Sorts))
}

func TestSortRanged(t *testing.T) {
	assert.True(t, SortTop.Ranged())
	assert.True(t, SortControversial.Ranged())
	assert.False(t, SortHot.Ranged())
	assert.True(t, ValidTimeRange("week"))
	assert.False(t, ValidTimeRange("decade"))
}
