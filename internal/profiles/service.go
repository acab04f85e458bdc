package profiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/bandmate/bandmate/internal/docstore"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/geo"
	"github.com/bandmate/bandmate/internal/location"
	"github.com/bandmate/bandmate/internal/music"
	"github.com/bandmate/bandmate/internal/telemetry"
)

// Radius bounds for musician search, in miles.
const (
	minSearchRadius = 1
	maxSearchRadius = 500
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
	scanBatchSize      = 300
)

// Service owns profile lifecycle and musician search.
type Service struct {
	profiles  docstore.Collection
	locations location.Resolver
}

// NewService creates a profile service.
func NewService(store docstore.Store, locations location.Resolver) *Service {
	return &Service{
		profiles:  store.Collection(Collection),
		locations: locations,
	}
}

// UpsertRequest carries the writable fields of a profile.
type UpsertRequest struct {
	DisplayName string             `json:"displayName"`
	Bio         string             `json:"bio"`
	Instruments []music.Instrument `json:"instruments"`
	Genres      []string           `json:"genres"`
	ZipCode     string             `json:"zipCode"`
}

// Validate checks the writable fields.
func (r UpsertRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Bio, validation.Length(0, 2000)),
		validation.Field(&r.ZipCode, validation.Required),
	)
	if err != nil {
		return apperrors.NewInvalidArgumentError("profile", err.Error())
	}
	for _, inst := range r.Instruments {
		if !music.IsValidInstrument(inst.Name) {
			return apperrors.NewInvalidArgumentError("instruments", fmt.Sprintf("unknown instrument %q", inst.Name))
		}
		if !music.IsValidSkillLevel(inst.SkillLevel) {
			return apperrors.NewInvalidArgumentError("instruments",
				fmt.Sprintf("skill level for %q must be between %d and %d", inst.Name, music.MinSkillLevel, music.MaxSkillLevel))
		}
	}
	for _, g := range r.Genres {
		if !music.IsValidGenre(g) {
			return apperrors.NewInvalidArgumentError("genres", fmt.Sprintf("unknown genre %q", g))
		}
	}
	return nil
}

// Upsert creates or replaces the caller's profile. The zip code is
// resolved through the location cache; creation time survives updates.
func (s *Service) Upsert(ctx context.Context, userID string, req UpsertRequest) (*View, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.locations.Resolve(ctx, req.ZipCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	profile := &Profile{
		UserID:      userID,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Instruments: req.Instruments,
		Genres:      req.Genres,
		Location: &Location{
			ZipCode:          record.ZipCode,
			FormattedAddress: record.FormattedAddress,
			Lat:              record.Lat,
			Lng:              record.Lng,
			Geohash:          record.Geohash,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if existing, err := s.load(ctx, userID); err == nil {
		profile.CreatedAt = existing.CreatedAt
	} else if !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		return nil, err
	}

	if err := s.profiles.Set(ctx, userID, profile.toDocument()); err != nil {
		return nil, apperrors.NewStorageError("upsert_profile", err)
	}

	telemetry.GetContextualLogger(ctx).WithField("user_id", userID).Info("Saved profile")
	return profile.View(), nil
}

// Get returns one profile by user id.
func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.View(), nil
}

// Delete removes the caller's profile.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.profiles.Delete(ctx, userID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperrors.NewNotFoundError("profile")
		}
		return apperrors.NewStorageError("delete_profile", err)
	}
	return nil
}

// Coordinates resolves a user to their home coordinates. A profile
// without a location yields an unset coordinate, not an error.
func (s *Service) Coordinates(ctx context.Context, userID string) (geo.Coordinate, error) {
	profile, err := s.load(ctx, userID)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if profile.Location == nil {
		return geo.Coordinate{}, nil
	}
	return geo.Coordinate{Lat: profile.Location.Lat, Lng: profile.Location.Lng}, nil
}

// SearchRequest asks for musicians near the caller matching the given
// instruments and genres. Empty filter slices match everyone.
type SearchRequest struct {
	CallerID    string
	Instruments []string
	Genres      []string
	RadiusMiles float64
	Limit       int
}

// SearchResult is one page of matching musicians, nearest first.
type SearchResult struct {
	Items       []*View `json:"items"`
	RadiusMiles float64 `json:"radiusMiles"`
}

// SearchMusicians scans profiles for musicians within RadiusMiles of the
// caller who play any of the requested instruments and any of the
// requested genres. The caller is excluded from results.
func (s *Service) SearchMusicians(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.RadiusMiles < minSearchRadius || req.RadiusMiles > maxSearchRadius {
		return nil, apperrors.NewInvalidArgumentError("radius",
			fmt.Sprintf("radius must be between %d and %d miles", minSearchRadius, maxSearchRadius))
	}
	for _, slug := range req.Instruments {
		if !music.IsValidInstrument(slug) {
			return nil, apperrors.NewInvalidArgumentError("instruments", fmt.Sprintf("unknown instrument %q", slug))
		}
	}
	for _, g := range req.Genres {
		if !music.IsValidGenre(g) {
			return nil, apperrors.NewInvalidArgumentError("genres", fmt.Sprintf("unknown genre %q", g))
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	origin, err := s.Coordinates(ctx, req.CallerID)
	if err != nil {
		return nil, err
	}
	if !origin.IsSet() {
		return nil, apperrors.NewInvalidArgumentError("location",
			"your profile needs a location before you can search for musicians")
	}

	type scored struct {
		view     *View
		distance float64
	}
	var matches []scored

	cursor := ""
	for {
		docs, err := s.profiles.Query(ctx, docstore.Query{
			StartAfter: cursor,
			Limit:      scanBatchSize,
		})
		if errors.Is(err, docstore.ErrCursorNotFound) {
			break
		}
		if err != nil {
			return nil, apperrors.NewStorageError("query_profiles", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			cursor = doc.ID
			profile, decodeErr := fromDocument(doc)
			if decodeErr != nil || profile.UserID == req.CallerID || profile.Location == nil {
				continue
			}
			target := geo.Coordinate{Lat: profile.Location.Lat, Lng: profile.Location.Lng}
			if !target.IsSet() {
				continue
			}
			distance := geo.MilesBetween(origin.Lat, origin.Lng, target.Lat, target.Lng)
			if distance > req.RadiusMiles {
				continue
			}
			if !playsAny(profile, req.Instruments) || !sharesGenre(profile, req.Genres) {
				continue
			}
			view := profile.View()
			rounded := math.Round(distance*100) / 100
			view.DistanceMiles = &rounded
			matches = append(matches, scored{view: view, distance: distance})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	result := &SearchResult{Items: make([]*View, 0, len(matches)), RadiusMiles: req.RadiusMiles}
	for _, m := range matches {
		result.Items = append(result.Items, m.view)
	}
	return result, nil
}

func playsAny(profile *Profile, slugs []string) bool {
	if len(slugs) == 0 {
		return true
	}
	for _, slug := range slugs {
		for _, inst := range profile.Instruments {
			if inst.Name == slug {
				return true
			}
		}
	}
	return false
}

func sharesGenre(profile *Profile, genres []string) bool {
	if len(genres) == 0 {
		return true
	}
	for _, want := range genres {
		for _, have := range profile.Genres {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (s *Service) load(ctx context.Context, userID string) (*Profile, error) {
	doc, err := s.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("profile")
		}
		return nil, apperrors.NewStorageError("get_profile", err)
	}
	profile, err := fromDocument(doc)
	if err != nil {
		return nil, apperrors.NewStorageError("decode_profile", err)
	}
	return profile, nil
}
