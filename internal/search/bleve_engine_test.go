package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/rdt/internal/model"
)

func newIndexed(t *testing.T) *BleveEngine {
	t.Helper()
	eng, err := NewBleveEngine()
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	eng.OnItemsLoaded("golang", []model.FeedItem{corpus[0], corpus[2]})
	eng.OnItemsLoaded("home", []model.FeedItem{corpus[1]})
	return eng
}

func TestBleveEngineIndexesAndSearches(t *testing.T) {
	eng := newIndexed(t)

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := eng.Search("released", 10)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "t3_a", res[0].Item.ID)

	res, err = eng.Search("ferr", 10)
	require.NoError(t, err)
	require.Len(t, res, 1, "prefix matches author")
	assert.Equal(t, "t3_b", res[0].Item.ID)

	res, err = eng.Search("x", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBleveEngineReindexReplaces(t *testing.T) {
	eng := newIndexed(t)

	edited := corpus[1]
	edited.Title = "Zig for CLIs"
	eng.OnItemsLoaded("home", []model.FeedItem{edited})

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	res, err := eng.Search("zig", 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Zig for CLIs", res[0].Item.Title)
}

func TestBleveEngineFeedDropped(t *testing.T) {
	eng := newIndexed(t)

	eng.OnFeedDropped("GoLang")

	n, err := eng.DocCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := eng.Search("generics", 10)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBleveEngineSatisfiesListeners(t *testing.T) {
	var _ Searcher = (*BleveEngine)(nil)
	var _ UpdateListener = (*BleveEngine)(nil)
	var _ DropListener = (*BleveEngine)(nil)
	var _ DebugStatser = (*BleveEngine)(nil)
	var _ Searcher = (*Engine)(nil)
}
