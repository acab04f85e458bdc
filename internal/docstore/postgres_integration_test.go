package docstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres brings up a disposable Postgres container and returns a
// store connected to it.
func startPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "bandmate_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := NewPostgresStore(Config{
		Host:     host,
		Port:     port.Port(),
		User:     "test",
		Password: "test",
		DBName:   "bandmate_test",
		SSLMode:  "disable",
	}, WithNumericFields("likeCount"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	store := startPostgres(t)
	ctx := context.Background()
	posts := store.Collection("posts")

	t.Run("crud", func(t *testing.T) {
		require.NoError(t, posts.Set(ctx, "p1", map[string]interface{}{
			"title": "hello", "likeCount": 2,
		}))

		doc, err := posts.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "hello", doc.Data["title"])
		assert.Equal(t, float64(2), doc.Data["likeCount"])

		require.NoError(t, posts.Update(ctx, "p1", map[string]interface{}{"likeCount": 3}))
		doc, err = posts.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, float64(3), doc.Data["likeCount"])
		assert.Equal(t, "hello", doc.Data["title"])

		require.NoError(t, posts.Delete(ctx, "p1"))
		_, err = posts.Get(ctx, "p1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, posts.Update(ctx, "p1", map[string]interface{}{"a": 1}), ErrNotFound)
	})

	t.Run("query", func(t *testing.T) {
		for i := 1; i <= 5; i++ {
			require.NoError(t, posts.Set(ctx, fmt.Sprintf("q%d", i), map[string]interface{}{
				"postType":  "looking_to_jam",
				"genres":    []string{"rock", "jazz"},
				"geohash":   fmt.Sprintf("9q5c%d", i),
				"likeCount": i,
				"createdAt": fmt.Sprintf("2025-06-01T12:0%d:00.000000000Z", i),
			}))
		}
		require.NoError(t, posts.Set(ctx, "other", map[string]interface{}{
			"postType": "sharing_music",
			"genres":   []string{"metal"},
			"geohash":  "dr5re",
		}))

		docs, err := posts.Query(ctx, Query{Filters: []Filter{
			{Field: "postType", Op: OpEqual, Value: "looking_to_jam"},
		}})
		require.NoError(t, err)
		assert.Len(t, docs, 5)

		docs, err = posts.Query(ctx, Query{Filters: []Filter{
			{Field: "genres", Op: OpArrayContainsAny, Value: []string{"jazz"}},
		}})
		require.NoError(t, err)
		assert.Len(t, docs, 5)

		docs, err = posts.Query(ctx, Query{
			Filters: []Filter{
				{Field: "geohash", Op: OpGreaterOrEqual, Value: "9q5c"},
				{Field: "geohash", Op: OpLessThan, Value: "9q5d"},
			},
			OrderField: "geohash",
			OrderDir:   Ascending,
		})
		require.NoError(t, err)
		require.Len(t, docs, 5)
		assert.Equal(t, "q1", docs[0].ID)
	})

	t.Run("numeric ordering", func(t *testing.T) {
		require.NoError(t, posts.Set(ctx, "big", map[string]interface{}{"likeCount": 10}))

		// The range filter keeps documents without a likeCount (NULL in
		// SQL) out of the ordering.
		docs, err := posts.Query(ctx, Query{
			Filters:    []Filter{{Field: "likeCount", Op: OpGreaterOrEqual, Value: 0}},
			OrderField: "likeCount",
			OrderDir:   Descending,
			Limit:      1,
		})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		// Text ordering would put "5" above "10"; numeric must not.
		assert.Equal(t, "big", docs[0].ID)
	})

	t.Run("cursor pagination", func(t *testing.T) {
		var seen []string
		cursor := ""
		for {
			q := Query{
				Filters:    []Filter{{Field: "postType", Op: OpEqual, Value: "looking_to_jam"}},
				OrderField: "createdAt",
				OrderDir:   Descending,
				StartAfter: cursor,
				Limit:      2,
			}
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
		assert.Equal(t, []string{"q5", "q4", "q3", "q2", "q1"}, seen)
	})

	t.Run("vanished cursor", func(t *testing.T) {
		_, err := posts.Query(ctx, Query{StartAfter: "never-existed"})
		assert.ErrorIs(t, err, ErrCursorNotFound)
	})
}
