// Package music holds the shared vocabulary of the app: post types,
// instrument slugs, genre slugs and their display names.
package music

// Post types
const (
	PostTypeLookingToJam        = "looking_to_jam"
	PostTypeLookingForBand      = "looking_for_band"
	PostTypeLookingForMusicians = "looking_for_musicians"
	PostTypeSharingMusic        = "sharing_music"
)

// PostTypes lists every valid post type slug.
var PostTypes = []string{
	PostTypeLookingToJam,
	PostTypeLookingForBand,
	PostTypeLookingForMusicians,
	PostTypeSharingMusic,
}

// Skill level bounds for instruments.
const (
	MinSkillLevel = 1
	MaxSkillLevel = 5
)

// Instrument is an instrument a musician plays or a post asks for.
type Instrument struct {
	Name       string `json:"name"`
	SkillLevel int    `json:"skillLevel"`
}

// InstrumentNames maps instrument slugs to display names.
var InstrumentNames = map[string]string{
	"electric_guitar": "Electric Guitar",
	"acoustic_guitar": "Acoustic Guitar",
	"electric_bass":   "Electric Bass",
	"drums":           "Drums",
	"piano":           "Piano",
	"keyboard":        "Keyboard",
	"vocals":          "Vocals",
	"dj_production":   "DJ/Production",
	"trumpet":         "Trumpet",
	"saxophone":       "Saxophone",
	"other":           "Other",
}

// GenreNames maps genre slugs to display names.
var GenreNames = map[string]string{
	"rock":         "Rock",
	"pop":          "Pop",
	"jazz":         "Jazz",
	"blues":        "Blues",
	"country":      "Country",
	"r_n_b":        "R&B",
	"hip_hop":      "Hip Hop",
	"hardcore":     "Hardcore",
	"electronic":   "Electronic",
	"classical":    "Classical",
	"metal":        "Metal",
	"death_metal":  "Death Metal",
	"folk":         "Folk",
	"reggae":       "Reggae",
	"punk":         "Punk",
	"indie":        "Indie",
	"soul":         "Soul",
	"funk":         "Funk",
	"latin":        "Latin",
	"alternative":  "Alternative",
	"gospel":       "Gospel",
	"experimental": "Experimental",
	"other":        "Other",
}

// IsValidPostType reports whether slug names a known post type.
func IsValidPostType(slug string) bool {
	for _, t := range PostTypes {
		if t == slug {
			return true
		}
	}
	return false
}

// IsValidGenre reports whether slug names a known genre.
func IsValidGenre(slug string) bool {
	_, ok := GenreNames[slug]
	return ok
}

// IsValidInstrument reports whether slug names a known instrument.
func IsValidInstrument(slug string) bool {
	_, ok := InstrumentNames[slug]
	return ok
}

// IsValidSkillLevel reports whether level is within the skill scale.
func IsValidSkillLevel(level int) bool {
	return level >= MinSkillLevel && level <= MaxSkillLevel
}
