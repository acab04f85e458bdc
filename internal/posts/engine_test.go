package posts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandmate/bandmate/internal/docstore"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/music"
)

var engineBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedPost stores a post directly in the collection, offsetting the
// creation time by seq so newer sequence numbers sort first.
func seedPost(t *testing.T, store docstore.Store, seq int, mutate func(*Post)) *Post {
	t.Helper()

	post := &Post{
		ID:        fmt.Sprintf("post-%03d", seq),
		UserID:    "user-1",
		PostType:  music.PostTypeLookingToJam,
		Title:     fmt.Sprintf("Post %d", seq),
		Body:      "Looking for people to jam with.",
		Genres:    []string{"rock"},
		CreatedAt: engineBase.Add(time.Duration(seq) * time.Minute),
		UpdatedAt: engineBase.Add(time.Duration(seq) * time.Minute),
	}
	if mutate != nil {
		mutate(post)
	}

	require.NoError(t, store.Collection(Collection).Set(context.Background(), post.ID, post.toDocument()))
	return post
}

func collectAllPages(t *testing.T, engine *Engine, req PageRequest) []*View {
	t.Helper()

	var items []*View
	for i := 0; i < 50; i++ {
		page, err := engine.FetchPage(context.Background(), req)
		require.NoError(t, err)
		items = append(items, page.Items...)
		if page.NextCursor == "" {
			return items
		}
		req.Cursor = page.NextCursor
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestFetchPagePaginatesNewestFirst(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)

	for i := 1; i <= 3; i++ {
		seedPost(t, store, i, nil)
	}

	req := NewPageRequest()
	req.Limit = 1

	first, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "post-003", first.Items[0].PostID)
	assert.NotEmpty(t, first.NextCursor)

	req.Cursor = first.NextCursor
	second, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "post-002", second.Items[0].PostID)
}

func TestFetchPageShortPageMeansExhausted(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, nil)
	seedPost(t, store, 2, nil)

	req := NewPageRequest()
	req.Limit = 10

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Empty(t, page.NextCursor, "a short page must not carry a cursor")
}

func TestFetchPageFullPageCursorThenEmptyPage(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, nil)
	seedPost(t, store, 2, nil)

	req := NewPageRequest()
	req.Limit = 2

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	// The page filled exactly at the end of the collection; the engine
	// cannot know that without another fetch, so a cursor is handed out.
	require.NotEmpty(t, page.NextCursor)

	req.Cursor = page.NextCursor
	empty, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Empty(t, empty.NextCursor)
}

func TestFetchPageGenreAnyMode(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) { p.Genres = []string{"jazz", "blues"} })
	seedPost(t, store, 2, func(p *Post) { p.Genres = []string{"metal"} })
	seedPost(t, store, 3, func(p *Post) { p.Genres = []string{"blues"} })

	req := NewPageRequest()
	req.Genres = []string{"jazz", "blues"}

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "post-003", page.Items[0].PostID)
	assert.Equal(t, "post-001", page.Items[1].PostID)
}

func TestFetchPageGenreAllMode(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) { p.Genres = []string{"jazz", "blues"} })
	seedPost(t, store, 2, func(p *Post) { p.Genres = []string{"jazz"} })

	req := NewPageRequest()
	req.Genres = []string{"jazz", "blues"}
	req.GenreMode = ModeAll

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "post-001", page.Items[0].PostID)
}

func TestFetchPageInstrumentSkillRanges(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) {
		p.Instruments = []music.Instrument{{Name: "drums", SkillLevel: 3}}
	})

	req := NewPageRequest()
	req.Instruments = map[string]SkillRange{"drums": {Min: 2, Max: 4}}
	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	req.Instruments = map[string]SkillRange{"drums": {Min: 4, Max: 5}}
	page, err = engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestFetchPageMatchesLegacyCasedInstruments(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)

	// Stored before instrument names were normalized to lowercase slugs.
	seedPost(t, store, 1, func(p *Post) {
		p.Instruments = []music.Instrument{{Name: "Drums", SkillLevel: 3}}
	})

	req := NewPageRequest()
	req.Instruments = map[string]SkillRange{"drums": {Min: 2, Max: 4}}

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "drums", page.Items[0].Instruments[0].Name)
}

func TestFetchPageInstrumentModes(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) {
		p.Instruments = []music.Instrument{{Name: "drums", SkillLevel: 3}}
	})
	seedPost(t, store, 2, func(p *Post) {
		p.Instruments = []music.Instrument{
			{Name: "drums", SkillLevel: 3},
			{Name: "vocals", SkillLevel: 5},
		}
	})

	req := NewPageRequest()
	req.Instruments = map[string]SkillRange{
		"drums":  {Min: 1, Max: 5},
		"vocals": {Min: 1, Max: 5},
	}

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2, "any mode needs one matching instrument")

	req.InstrumentMode = ModeAll
	page, err = engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1, "all mode needs every instrument")
	assert.Equal(t, "post-002", page.Items[0].PostID)
}

func TestFetchPageGeohashPrefix(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) {
		p.Location = &Location{Lat: 34.05, Lng: -118.24, Geohash: "9q5ct"}
	})
	seedPost(t, store, 2, func(p *Post) {
		p.Location = &Location{Lat: 40.71, Lng: -74.00, Geohash: "dr5re"}
	})
	// Posts without a location never match a geo filter.
	seedPost(t, store, 3, nil)

	req := NewPageRequest()
	req.GeohashPrefix = "9q5c"

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "post-001", page.Items[0].PostID)
}

func TestFetchPageGeohashPrefixOrdersByGeohash(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) {
		p.Location = &Location{Lat: 34.05, Lng: -118.24, Geohash: "9q5cz"}
	})
	seedPost(t, store, 2, func(p *Post) {
		p.Location = &Location{Lat: 34.04, Lng: -118.25, Geohash: "9q5cb"}
	})

	req := NewPageRequest()
	req.GeohashPrefix = "9q5c"

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "post-002", page.Items[0].PostID)
	assert.Equal(t, "post-001", page.Items[1].PostID)
}

func TestFetchPagePostTypeAndAuthorFilters(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) { p.PostType = music.PostTypeSharingMusic })
	seedPost(t, store, 2, func(p *Post) { p.UserID = "user-2" })
	seedPost(t, store, 3, nil)

	req := NewPageRequest()
	req.PostType = music.PostTypeLookingToJam
	req.AuthorID = "user-1"

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "post-003", page.Items[0].PostID)
}

func TestFetchPageSortByLikes(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, func(p *Post) { p.LikedBy = []string{"a", "b", "c"} })
	seedPost(t, store, 2, nil)
	seedPost(t, store, 3, func(p *Post) { p.LikedBy = []string{"a"} })

	req := NewPageRequest()
	req.SortField = SortLikes

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "post-001", page.Items[0].PostID)
	assert.Equal(t, 3, page.Items[0].Likes)
	assert.Equal(t, "post-003", page.Items[1].PostID)
	assert.Equal(t, "post-002", page.Items[2].PostID)
}

func TestFetchPageVanishedCursorEndsScan(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)
	seedPost(t, store, 1, nil)

	req := NewPageRequest()
	req.Cursor = "post-deleted"

	page, err := engine.FetchPage(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)
}

func TestFetchPageLocalFiltersDoNotDuplicateAcrossPages(t *testing.T) {
	store := docstore.NewMemoryStore()
	engine := NewEngine(store)

	// Interleave matching and non-matching posts so every batch has to
	// skip filtered documents.
	for i := 1; i <= 12; i++ {
		i := i
		seedPost(t, store, i, func(p *Post) {
			if i%2 == 0 {
				p.Instruments = []music.Instrument{{Name: "drums", SkillLevel: 3}}
			} else {
				p.Instruments = []music.Instrument{{Name: "piano", SkillLevel: 3}}
			}
		})
	}

	req := NewPageRequest()
	req.Limit = 2
	req.Instruments = map[string]SkillRange{"drums": {Min: 1, Max: 5}}

	items := collectAllPages(t, engine, req)
	require.Len(t, items, 6)

	seen := make(map[string]bool)
	for _, item := range items {
		assert.False(t, seen[item.PostID], "post %s returned twice", item.PostID)
		seen[item.PostID] = true
	}
}

func TestFetchPageRejectsInvalidRequest(t *testing.T) {
	engine := NewEngine(docstore.NewMemoryStore())

	req := NewPageRequest()
	req.PostType = "not_a_type"

	_, err := engine.FetchPage(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestFetchPageRejectsInvalidGeohashPrefix(t *testing.T) {
	engine := NewEngine(docstore.NewMemoryStore())

	req := NewPageRequest()
	req.GeohashPrefix = "9a!"

	_, err := engine.FetchPage(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestViewNeverExposesLikedBy(t *testing.T) {
	post := &Post{
		ID:      "post-1",
		UserID:  "user-1",
		LikedBy: []string{"user-2", "user-3"},
	}

	view := post.View("user-2")
	assert.Equal(t, 2, view.Likes)
	assert.True(t, view.LikedByCurrentUser)

	view = post.View("user-9")
	assert.False(t, view.LikedByCurrentUser)
}
