package posts

import (
	"fmt"
	"strings"
	"time"

	"github.com/bandmate/bandmate/internal/docstore"
	"github.com/bandmate/bandmate/internal/music"
)

// Collection is the document collection holding posts.
const Collection = "posts"

// timeLayout is a fixed-width RFC3339 variant so stored timestamps sort
// lexicographically in the document store.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Location is the resolved place attached to a post.
type Location struct {
	ZipCode          string  `json:"zipCode,omitempty"`
	FormattedAddress string  `json:"formattedAddress,omitempty"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Geohash          string  `json:"geohash,omitempty"`
}

// Post is the canonical post model. LikedBy is internal; it never leaves
// the service, responses carry only the derived like fields.
type Post struct {
	ID          string
	UserID      string
	PostType    string
	Title       string
	Body        string
	Instruments []music.Instrument
	Genres      []string
	Location    *Location
	LikedBy     []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// View is the outward representation of a post.
type View struct {
	PostID             string             `json:"postId"`
	UserID             string             `json:"userId"`
	PostType           string             `json:"postType"`
	Title              string             `json:"title"`
	Body               string             `json:"body"`
	Instruments        []music.Instrument `json:"instruments"`
	Genres             []string           `json:"genres"`
	Location           *Location          `json:"location,omitempty"`
	Likes              int                `json:"likes"`
	LikedByCurrentUser bool               `json:"likedByCurrentUser"`
	DistanceMiles      *float64           `json:"distanceMiles,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// View projects the post for a given caller. The likedBy list itself is
// intentionally absent.
func (p *Post) View(callerID string) *View {
	liked := false
	for _, id := range p.LikedBy {
		if id == callerID {
			liked = true
			break
		}
	}
	return &View{
		PostID:             p.ID,
		UserID:             p.UserID,
		PostType:           p.PostType,
		Title:              p.Title,
		Body:               p.Body,
		Instruments:        p.Instruments,
		Genres:             p.Genres,
		Location:           p.Location,
		Likes:              len(p.LikedBy),
		LikedByCurrentUser: liked,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

// toDocument renders the canonical stored shape. The geohash is
// denormalized to a top-level field so the store can range-scan it, and
// likeCount is maintained alongside likedBy so the store can sort on it.
func (p *Post) toDocument() map[string]interface{} {
	instruments := make([]interface{}, 0, len(p.Instruments))
	for _, inst := range p.Instruments {
		instruments = append(instruments, map[string]interface{}{
			"name":       inst.Name,
			"skillLevel": inst.SkillLevel,
		})
	}

	genres := make([]interface{}, 0, len(p.Genres))
	for _, g := range p.Genres {
		genres = append(genres, g)
	}

	likedBy := make([]interface{}, 0, len(p.LikedBy))
	for _, id := range p.LikedBy {
		likedBy = append(likedBy, id)
	}

	doc := map[string]interface{}{
		"postId":      p.ID,
		"userId":      p.UserID,
		"postType":    p.PostType,
		"title":       p.Title,
		"body":        p.Body,
		"instruments": instruments,
		"genres":      genres,
		"likedBy":     likedBy,
		"likeCount":   len(p.LikedBy),
		"createdAt":   p.CreatedAt.UTC().Format(timeLayout),
		"updatedAt":   p.UpdatedAt.UTC().Format(timeLayout),
	}

	if p.Location != nil {
		doc["location"] = map[string]interface{}{
			"zipCode":          p.Location.ZipCode,
			"formattedAddress": p.Location.FormattedAddress,
			"lat":              p.Location.Lat,
			"lng":              p.Location.Lng,
			"geohash":          p.Location.Geohash,
		}
		doc["geohash"] = p.Location.Geohash
	}

	return doc
}

// fromDocument normalizes a stored document into the canonical model.
// Historical documents used snake_case spellings for several fields;
// this is the single place that knows about them.
func fromDocument(doc *docstore.Document) (*Post, error) {
	d := doc.Data

	p := &Post{
		ID:       stringField(d, "postId", "post_id"),
		UserID:   stringField(d, "userId", "user_id"),
		PostType: stringField(d, "postType", "post_type"),
		Title:    stringField(d, "title"),
		Body:     stringField(d, "body"),
	}
	if p.ID == "" {
		p.ID = doc.ID
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("post %s has no author", doc.ID)
	}

	if raw, ok := anyField(d, "instruments").([]interface{}); ok {
		for _, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			// Older documents stored display-cased names; filters compare
			// lowercase slugs.
			inst := music.Instrument{Name: strings.ToLower(stringField(m, "name"))}
			if level, ok := numberField(m, "skillLevel", "skill_level", "skill"); ok {
				inst.SkillLevel = int(level)
			}
			p.Instruments = append(p.Instruments, inst)
		}
	}

	if raw, ok := anyField(d, "genres").([]interface{}); ok {
		for _, item := range raw {
			if g, ok := item.(string); ok {
				p.Genres = append(p.Genres, g)
			}
		}
	}

	if raw, ok := anyField(d, "likedBy", "liked_by").([]interface{}); ok {
		for _, item := range raw {
			if id, ok := item.(string); ok {
				p.LikedBy = append(p.LikedBy, id)
			}
		}
	}

	if m, ok := anyField(d, "location").(map[string]interface{}); ok {
		loc := &Location{
			ZipCode:          stringField(m, "zipCode", "zip_code"),
			FormattedAddress: stringField(m, "formattedAddress", "formatted_address"),
			Geohash:          stringField(m, "geohash"),
		}
		if lat, ok := numberField(m, "lat"); ok {
			loc.Lat = lat
		}
		if lng, ok := numberField(m, "lng"); ok {
			loc.Lng = lng
		}
		p.Location = loc
	}

	p.CreatedAt = timeField(d, "createdAt", "created_at")
	p.UpdatedAt = timeField(d, "updatedAt", "updated_at")

	return p, nil
}

func stringField(d map[string]interface{}, names ...string) string {
	for _, name := range names {
		if s, ok := d[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func anyField(d map[string]interface{}, names ...string) interface{} {
	for _, name := range names {
		if v, ok := d[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

func numberField(d map[string]interface{}, names ...string) (float64, bool) {
	for _, name := range names {
		if f, ok := d[name].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func timeField(d map[string]interface{}, names ...string) time.Time {
	s := stringField(d, names...)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
