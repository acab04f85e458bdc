package posts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/bandmate/bandmate/internal/docstore"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/geo"
	"github.com/bandmate/bandmate/internal/location"
	"github.com/bandmate/bandmate/internal/music"
	"github.com/bandmate/bandmate/internal/telemetry"
)

// Radius bounds for the proximity feed, in miles.
const (
	MinFeedRadius = 1
	MaxFeedRadius = 500
)

// Feed limit bounds. Requests outside the range are clamped, not
// rejected.
const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// ProfileLocator resolves a user id to their home coordinates. Users
// without a resolvable location cannot use proximity features.
type ProfileLocator interface {
	Coordinates(ctx context.Context, userID string) (geo.Coordinate, error)
}

// Service owns the post lifecycle: creation, editing, likes, listing
// and the proximity feed.
type Service struct {
	posts     docstore.Collection
	engine    *Engine
	locations location.Resolver
	profiles  ProfileLocator
}

// NewService creates a post service.
func NewService(store docstore.Store, locations location.Resolver, profiles ProfileLocator) *Service {
	return &Service{
		posts:     store.Collection(Collection),
		engine:    NewEngine(store),
		locations: locations,
		profiles:  profiles,
	}
}

// CreateRequest carries the writable fields of a post.
type CreateRequest struct {
	PostType    string             `json:"postType"`
	Title       string             `json:"title"`
	Body        string             `json:"body"`
	Instruments []music.Instrument `json:"instruments"`
	Genres      []string           `json:"genres"`
	ZipCode     string             `json:"zipCode"`
}

// Validate checks the writable fields.
func (r CreateRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.PostType, validation.Required, validation.In(toInterfaces(music.PostTypes)...)),
		validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Body, validation.Required, validation.Length(1, 5000)),
		validation.Field(&r.ZipCode, validation.Required),
	)
	if err != nil {
		return apperrors.NewInvalidArgumentError("post", err.Error())
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

// Create resolves the zip code, persists the post and returns its view.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*View, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.locations.Resolve(ctx, req.ZipCode)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	post := &Post{
		ID:          uuid.New().String(),
		UserID:      userID,
		PostType:    req.PostType,
		Title:       req.Title,
		Body:        req.Body,
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

	if err := s.posts.Set(ctx, post.ID, post.toDocument()); err != nil {
		return nil, apperrors.NewStorageError("create_post", err)
	}

	telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"post_id":   post.ID,
		"post_type": post.PostType,
	}).Info("Created post")

	return post.View(userID), nil
}

// Get returns one post by id.
func (s *Service) Get(ctx context.Context, postID, callerID string) (*View, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	return post.View(callerID), nil
}

// Update replaces the writable fields of a post. Only the author may
// update it; the like state and creation time are preserved.
func (s *Service) Update(ctx context.Context, postID, callerID string, req CreateRequest) (*View, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != callerID {
		return nil, apperrors.NewForbiddenError("only the author can update this post")
	}

	record, err := s.locations.Resolve(ctx, req.ZipCode)
	if err != nil {
		return nil, err
	}

	post.PostType = req.PostType
	post.Title = req.Title
	post.Body = req.Body
	post.Instruments = req.Instruments
	post.Genres = req.Genres
	post.Location = &Location{
		ZipCode:          record.ZipCode,
		FormattedAddress: record.FormattedAddress,
		Lat:              record.Lat,
		Lng:              record.Lng,
		Geohash:          record.Geohash,
	}
	post.UpdatedAt = time.Now().UTC()

	if err := s.posts.Set(ctx, post.ID, post.toDocument()); err != nil {
		return nil, apperrors.NewStorageError("update_post", err)
	}
	return post.View(callerID), nil
}

// Delete removes a post. Only the author may delete it.
func (s *Service) Delete(ctx context.Context, postID, callerID string) error {
	post, err := s.load(ctx, postID)
	if err != nil {
		return err
	}
	if post.UserID != callerID {
		return apperrors.NewForbiddenError("only the author can delete this post")
	}
	if err := s.posts.Delete(ctx, postID); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return apperrors.NewNotFoundError("post")
		}
		return apperrors.NewStorageError("delete_post", err)
	}
	return nil
}

// LikeResponse is the result of a like toggle.
type LikeResponse struct {
	PostID  string `json:"postId"`
	Likes   int    `json:"likes"`
	Liked   bool   `json:"liked"`
	Message string `json:"message"`
}

// ToggleLike likes the post if the caller has not liked it, and unlikes
// it otherwise.
func (s *Service) ToggleLike(ctx context.Context, postID, callerID string) (*LikeResponse, error) {
	post, err := s.load(ctx, postID)
	if err != nil {
		return nil, err
	}

	liked := false
	likedBy := make([]string, 0, len(post.LikedBy)+1)
	for _, id := range post.LikedBy {
		if id == callerID {
			liked = true
			continue
		}
		likedBy = append(likedBy, id)
	}
	if !liked {
		likedBy = append(likedBy, callerID)
	}
	post.LikedBy = likedBy

	fields := map[string]interface{}{
		"likedBy":   toInterfaces(likedBy),
		"likeCount": len(likedBy),
	}
	if err := s.posts.Update(ctx, postID, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("post")
		}
		return nil, apperrors.NewStorageError("toggle_like", err)
	}

	message := "Post liked successfully"
	if liked {
		message = "Post unliked successfully"
	}
	return &LikeResponse{
		PostID:  postID,
		Likes:   len(likedBy),
		Liked:   !liked,
		Message: message,
	}, nil
}

// List runs a filtered paginated listing.
func (s *Service) List(ctx context.Context, req PageRequest) (*Page, error) {
	return s.engine.FetchPage(ctx, req)
}

// FeedRequest asks for posts near the caller's home location.
type FeedRequest struct {
	CallerID    string
	RadiusMiles float64
	Limit       int
}

// Feed is the proximity feed response. Item views carry their distance
// from the caller.
type Feed struct {
	Items       []*View `json:"items"`
	RadiusMiles float64 `json:"radiusMiles"`
}

// Feed returns posts within RadiusMiles of the caller's home location,
// nearest first. The caller must have a profile with a resolved
// location.
func (s *Service) Feed(ctx context.Context, req FeedRequest) (*Feed, error) {
	if req.RadiusMiles < MinFeedRadius || req.RadiusMiles > MaxFeedRadius {
		return nil, apperrors.NewInvalidArgumentError("radius",
			fmt.Sprintf("radius must be between %d and %d miles", MinFeedRadius, MaxFeedRadius))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	origin, err := s.profiles.Coordinates(ctx, req.CallerID)
	if err != nil {
		return nil, err
	}
	if !origin.IsSet() {
		return nil, apperrors.NewInvalidArgumentError("location",
			"your profile needs a location before you can browse nearby posts")
	}

	type scored struct {
		view     *View
		distance float64
	}
	var matches []scored

	cursor := ""
	for {
		docs, err := s.posts.Query(ctx, docstore.Query{
			OrderField: "createdAt",
			OrderDir:   docstore.Descending,
			StartAfter: cursor,
			Limit:      maxBatchSize,
		})
		if errors.Is(err, docstore.ErrCursorNotFound) {
			break
		}
		if err != nil {
			return nil, apperrors.NewStorageError("query_posts", err)
		}
		if len(docs) == 0 {
			break
		}

		for _, doc := range docs {
			cursor = doc.ID
			post, decodeErr := fromDocument(doc)
			if decodeErr != nil || post.Location == nil {
				continue
			}
			target := geo.Coordinate{Lat: post.Location.Lat, Lng: post.Location.Lng}
			if !target.IsSet() {
				continue
			}
			distance := geo.MilesBetween(origin.Lat, origin.Lng, target.Lat, target.Lng)
			if distance > req.RadiusMiles {
				continue
			}
			view := post.View(req.CallerID)
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

	feed := &Feed{Items: make([]*View, 0, len(matches)), RadiusMiles: req.RadiusMiles}
	for _, m := range matches {
		feed.Items = append(feed.Items, m.view)
	}
	return feed, nil
}

func (s *Service) load(ctx context.Context, postID string) (*Post, error) {
	doc, err := s.posts.Get(ctx, postID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("post")
		}
		return nil, apperrors.NewStorageError("get_post", err)
	}
	post, err := fromDocument(doc)
	if err != nil {
		return nil, apperrors.NewStorageError("decode_post", err)
	}
	return post, nil
}
