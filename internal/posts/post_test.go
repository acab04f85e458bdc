package posts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandmate/bandmate/internal/docstore"
	"github.com/bandmate/bandmate/internal/music"
)

func TestDocumentRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	post := &Post{
		ID:       "post-1",
		UserID:   "user-1",
		PostType: music.PostTypeLookingForBand,
		Title:    "Guitarist available",
		Body:     "Into blues and funk.",
		Instruments: []music.Instrument{
			{Name: "electric_guitar", SkillLevel: 4},
		},
		Genres:   []string{"blues", "funk"},
		LikedBy:  []string{"user-2"},
		Location: &Location{ZipCode: "97201", Lat: 45.5, Lng: -122.7, Geohash: "c20dz"},

		CreatedAt: created,
		UpdatedAt: created,
	}

	doc := post.toDocument()
	assert.Equal(t, "c20dz", doc["geohash"], "geohash is denormalized for range scans")
	assert.Equal(t, 1, doc["likeCount"], "likeCount mirrors likedBy for sorting")
	assert.Equal(t, "2025-06-01T12:00:00.123456789Z", doc["createdAt"])

	decoded, err := fromDocument(&docstore.Document{ID: "post-1", Data: doc})
	require.NoError(t, err)
	assert.Equal(t, post.ID, decoded.ID)
	assert.Equal(t, post.UserID, decoded.UserID)
	assert.Equal(t, post.Genres, decoded.Genres)
	assert.Equal(t, post.LikedBy, decoded.LikedBy)
	require.NotNil(t, decoded.Location)
	assert.Equal(t, "c20dz", decoded.Location.Geohash)
	assert.True(t, post.CreatedAt.Equal(decoded.CreatedAt))
}

func TestFromDocumentLegacySpellings(t *testing.T) {
	doc := &docstore.Document{
		ID: "post-legacy",
		Data: map[string]interface{}{
			"post_id":   "post-legacy",
			"user_id":   "user-1",
			"post_type": "looking_to_jam",
			"title":     "Old post",
			"body":      "Stored before the field rename.",
			"instruments": []interface{}{
				map[string]interface{}{"name": "Drums", "skill_level": float64(3)},
				map[string]interface{}{"name": "vocals", "skill": float64(2)},
			},
			"liked_by":   []interface{}{"user-2", "user-3"},
			"created_at": "2024-01-15T08:30:00.000000000Z",
			"location": map[string]interface{}{
				"zip_code":          "97201",
				"formatted_address": "Portland, OR",
				"lat":               45.5,
				"lng":               -122.7,
				"geohash":           "c20dz",
			},
		},
	}

	post, err := fromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "user-1", post.UserID)
	assert.Equal(t, "looking_to_jam", post.PostType)
	require.Len(t, post.Instruments, 2)
	assert.Equal(t, "drums", post.Instruments[0].Name, "display-cased names are lowered on decode")
	assert.Equal(t, 3, post.Instruments[0].SkillLevel)
	assert.Equal(t, 2, post.Instruments[1].SkillLevel)
	assert.Equal(t, []string{"user-2", "user-3"}, post.LikedBy)
	require.NotNil(t, post.Location)
	assert.Equal(t, "97201", post.Location.ZipCode)
	assert.Equal(t, 2024, post.CreatedAt.Year())
}

func TestFromDocumentFallsBackToDocumentID(t *testing.T) {
	post, err := fromDocument(&docstore.Document{
		ID:   "doc-id",
		Data: map[string]interface{}{"userId": "user-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-id", post.ID)
}

func TestFromDocumentRejectsAuthorlessPost(t *testing.T) {
	_, err := fromDocument(&docstore.Document{
		ID:   "doc-id",
		Data: map[string]interface{}{"title": "orphan"},
	})
	assert.Error(t, err)
}
