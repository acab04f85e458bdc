package posts

import (
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/music"
)

// Mode selects multi-value filter semantics: ANY requires at least one
// match, ALL requires every requested value to match.
type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

// Sort fields accepted by the listing endpoint.
const (
	SortCreatedAt = "createdAt"
	SortLikes     = "likes"
)

// Sort directions.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SkillRange is an inclusive skill-level requirement for an instrument.
type SkillRange struct {
	Min int
	Max int
}

// DefaultSkillRange spans the whole skill scale.
var DefaultSkillRange = SkillRange{Min: music.MinSkillLevel, Max: music.MaxSkillLevel}

// PageRequest describes one page fetch over the post collection.
type PageRequest struct {
	Limit          int
	Cursor         string
	PostType       string
	AuthorID       string
	Instruments    map[string]SkillRange
	InstrumentMode Mode
	Genres         []string
	GenreMode      Mode
	GeohashPrefix  string
	SortField      string
	SortOrder      string
	CallerID       string
}

// NewPageRequest returns a request with the endpoint defaults applied.
func NewPageRequest() PageRequest {
	return PageRequest{
		Limit:          10,
		InstrumentMode: ModeAny,
		GenreMode:      ModeAny,
		SortField:      SortCreatedAt,
		SortOrder:      OrderDesc,
	}
}

// Validate checks the request. All violations surface as InvalidArgument.
func (r PageRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&r.PostType, validation.In(toInterfaces(music.PostTypes)...)),
		validation.Field(&r.InstrumentMode, validation.Required, validation.In(ModeAny, ModeAll)),
		validation.Field(&r.GenreMode, validation.Required, validation.In(ModeAny, ModeAll)),
		validation.Field(&r.SortField, validation.Required, validation.In(SortCreatedAt, SortLikes)),
		validation.Field(&r.SortOrder, validation.Required, validation.In(OrderAsc, OrderDesc)),
	)
	if err != nil {
		return apperrors.NewInvalidArgumentError("pageRequest", err.Error())
	}

	for _, g := range r.Genres {
		if !music.IsValidGenre(g) {
			return apperrors.NewInvalidArgumentError("genres", fmt.Sprintf("unknown genre %q", g))
		}
	}
	for slug, bounds := range r.Instruments {
		if !music.IsValidSkillLevel(bounds.Min) || !music.IsValidSkillLevel(bounds.Max) || bounds.Min > bounds.Max {
			return apperrors.NewInvalidArgumentError("instruments",
				fmt.Sprintf("invalid skill range %d:%d for instrument %q", bounds.Min, bounds.Max, slug))
		}
	}
	return nil
}

// ParseInstrumentRequirements parses instrument filter specs of the form
// "slug", "slug:min" or "slug:min:max". Unspecified bounds default to
// the full skill scale.
func ParseInstrumentRequirements(specs []string) (map[string]SkillRange, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	out := make(map[string]SkillRange, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		slug := strings.TrimSpace(parts[0])
		if slug == "" || len(parts) > 3 {
			return nil, apperrors.NewInvalidArgumentError("instruments",
				fmt.Sprintf("malformed instrument filter %q", spec))
		}

		bounds := DefaultSkillRange
		if len(parts) >= 2 {
			min, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, apperrors.NewInvalidArgumentError("instruments",
					fmt.Sprintf("malformed instrument filter %q", spec))
			}
			bounds.Min = min
			bounds.Max = music.MaxSkillLevel
		}
		if len(parts) == 3 {
			max, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, apperrors.NewInvalidArgumentError("instruments",
					fmt.Sprintf("malformed instrument filter %q", spec))
			}
			bounds.Max = max
		}
		out[strings.ToLower(slug)] = bounds
	}
	return out, nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
