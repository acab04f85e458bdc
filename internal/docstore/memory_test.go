package docstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	require.NoError(t, posts.Set(ctx, "p1", map[string]interface{}{"title": "hello", "likeCount": 2}))

	doc, err := posts.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Data["title"])
	// Numbers come back as float64, same as JSONB decoding.
	assert.Equal(t, float64(2), doc.Data["likeCount"])

	require.NoError(t, posts.Update(ctx, "p1", map[string]interface{}{"likeCount": 3}))
	doc, err = posts.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, float64(3), doc.Data["likeCount"])
	assert.Equal(t, "hello", doc.Data["title"], "update merges, not replaces")

	require.NoError(t, posts.Delete(ctx, "p1"))
	_, err = posts.Get(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentReadsOnFreshCollection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Reads on a collection nobody has written to must be safe under the
	// race detector.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := store.Collection(fmt.Sprintf("fresh-%d", n%2))
			_, err := c.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = c.Query(ctx, Query{})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	assert.ErrorIs(t, posts.Update(ctx, "nope", map[string]interface{}{"a": 1}), ErrNotFound)
	assert.ErrorIs(t, posts.Delete(ctx, "nope"), ErrNotFound)
}

func TestMemoryStoreCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Collection("a").Set(ctx, "x", map[string]interface{}{"v": 1}))

	_, err := store.Collection("b").Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	require.NoError(t, posts.Set(ctx, "p1", map[string]interface{}{
		"postType": "looking_to_jam", "genres": []string{"rock", "jazz"}, "geohash": "9q5ct",
	}))
	require.NoError(t, posts.Set(ctx, "p2", map[string]interface{}{
		"postType": "sharing_music", "genres": []string{"metal"}, "geohash": "dr5re",
	}))

	docs, err := posts.Query(ctx, Query{Filters: []Filter{
		{Field: "postType", Op: OpEqual, Value: "looking_to_jam"},
	}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)

	docs, err = posts.Query(ctx, Query{Filters: []Filter{
		{Field: "genres", Op: OpArrayContainsAny, Value: []string{"jazz", "blues"}},
	}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)

	docs, err = posts.Query(ctx, Query{Filters: []Filter{
		{Field: "geohash", Op: OpGreaterOrEqual, Value: "9q5c"},
		{Field: "geohash", Op: OpLessThan, Value: "9q5d"},
	}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "p1", docs[0].ID)
}

func TestMemoryStoreQueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	for i := 1; i <= 3; i++ {
		require.NoError(t, posts.Set(ctx, fmt.Sprintf("p%d", i), map[string]interface{}{
			"createdAt": fmt.Sprintf("2025-06-01T12:0%d:00.000000000Z", i),
			"likeCount": i * 10,
		}))
	}

	docs, err := posts.Query(ctx, Query{OrderField: "createdAt", OrderDir: Descending})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "p3", docs[0].ID)
	assert.Equal(t, "p1", docs[2].ID)

	// Numeric fields order numerically, not as text.
	require.NoError(t, posts.Set(ctx, "p4", map[string]interface{}{"likeCount": 9}))
	docs, err = posts.Query(ctx, Query{OrderField: "likeCount", OrderDir: Ascending, Limit: 2})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "p4", docs[0].ID)
	assert.Equal(t, "p1", docs[1].ID)
}

func TestMemoryStoreCursorPagination(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	for i := 1; i <= 5; i++ {
		require.NoError(t, posts.Set(ctx, fmt.Sprintf("p%d", i), map[string]interface{}{
			"createdAt": fmt.Sprintf("2025-06-01T12:0%d:00.000000000Z", i),
		}))
	}

	var seen []string
	cursor := ""
	for {
		q := Query{OrderField: "createdAt", OrderDir: Descending, StartAfter: cursor, Limit: 2}
		docs, err := posts.Query(ctx, q)
		require.NoError(t, err)
		if len(docs) == 0 {
			break
		}
		for _, doc := range docs {
			seen = append(seen, doc.ID)
		}
		cursor = docs[len(docs)-1].ID
	}

	assert.Equal(t, []string{"p5", "p4", "p3", "p2", "p1"}, seen)
}

func TestMemoryStoreCursorNotFound(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")
	require.NoError(t, posts.Set(ctx, "p1", map[string]interface{}{"v": 1}))

	_, err := posts.Query(ctx, Query{StartAfter: "deleted"})
	assert.ErrorIs(t, err, ErrCursorNotFound)
}

func TestMemoryStoreCursorTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	posts := NewMemoryStore().Collection("posts")

	// Identical sort keys: the document id must break the tie so
	// pagination neither skips nor repeats.
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, posts.Set(ctx, id, map[string]interface{}{"geohash": "9q5ct"}))
	}

	docs, err := posts.Query(ctx, Query{OrderField: "geohash", OrderDir: Ascending, StartAfter: "b"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)
}
