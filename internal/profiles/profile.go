// Package profiles manages musician profiles: who a user is, what they
// play, and where they are.
package profiles

import (
	"fmt"
	"strings"
	"time"

	"github.com/bandmate/bandmate/internal/docstore"
	"github.com/bandmate/bandmate/internal/music"
)

// Collection is the document collection holding profiles.
const Collection = "profiles"

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Location is a profile's resolved home location.
type Location struct {
	ZipCode          string  `json:"zipCode,omitempty"`
	FormattedAddress string  `json:"formattedAddress,omitempty"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Geohash          string  `json:"geohash,omitempty"`
}

// Profile is the canonical profile model.
type Profile struct {
	UserID      string
	DisplayName string
	Bio         string
	Instruments []music.Instrument
	Genres      []string
	Location    *Location
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// View is the outward representation of a profile.
type View struct {
	UserID        string             `json:"userId"`
	DisplayName   string             `json:"displayName"`
	Bio           string             `json:"bio,omitempty"`
	Instruments   []music.Instrument `json:"instruments"`
	Genres        []string           `json:"genres"`
	Location      *Location          `json:"location,omitempty"`
	DistanceMiles *float64           `json:"distanceMiles,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// View projects the profile.
func (p *Profile) View() *View {
	return &View{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Instruments: p.Instruments,
		Genres:      p.Genres,
		Location:    p.Location,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// toDocument renders the stored shape. The geohash is denormalized to a
// top-level field, mirroring the post layout.
func (p *Profile) toDocument() map[string]interface{} {
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

	doc := map[string]interface{}{
		"userId":      p.UserID,
		"displayName": p.DisplayName,
		"bio":         p.Bio,
		"instruments": instruments,
		"genres":      genres,
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

// fromDocument normalizes a stored document, accepting the snake_case
// spellings older documents carry.
func fromDocument(doc *docstore.Document) (*Profile, error) {
	d := doc.Data

	p := &Profile{
		UserID:      stringField(d, "userId", "user_id"),
		DisplayName: stringField(d, "displayName", "display_name"),
		Bio:         stringField(d, "bio"),
	}
	if p.UserID == "" {
		p.UserID = doc.ID
	}
	if p.UserID == "" {
		return nil, fmt.Errorf("profile document has no user id")
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
