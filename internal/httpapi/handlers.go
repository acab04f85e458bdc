package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/location"
	"github.com/bandmate/bandmate/internal/monitoring"
	"github.com/bandmate/bandmate/internal/posts"
	"github.com/bandmate/bandmate/internal/profiles"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	locations *location.Service
	posts     *posts.Service
	profiles  *profiles.Service
	metrics   *monitoring.MetricsCollector
}

// NewHandlers creates the handler set.
func NewHandlers(locations *location.Service, postSvc *posts.Service, profileSvc *profiles.Service, metrics *monitoring.MetricsCollector) *Handlers {
	return &Handlers{
		locations: locations,
		posts:     postSvc,
		profiles:  profileSvc,
		metrics:   metrics,
	}
}

// ResolveLocation handles GET /locations/:zipCode.
func (h *Handlers) ResolveLocation(c *gin.Context) {
	record, err := h.locations.Resolve(c.Request.Context(), c.Param("zipCode"))
	if err != nil {
		h.metrics.RecordGeocodeLookup(string(apperrors.AsAppError(err).Type))
		respondError(c, err)
		return
	}

	h.metrics.RecordGeocodeLookup("resolved")
	c.JSON(http.StatusOK, record)
}

// CreatePost handles POST /posts.
func (h *Handlers) CreatePost(c *gin.Context) {
	var req posts.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidArgumentError("body", "request body must be valid JSON"))
		return
	}

	view, err := h.posts.Create(c.Request.Context(), callerID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.RecordPostCreated(view.PostType)
	c.JSON(http.StatusCreated, view)
}

// GetPost handles GET /posts/:postId.
func (h *Handlers) GetPost(c *gin.Context) {
	view, err := h.posts.Get(c.Request.Context(), c.Param("postId"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdatePost handles PUT /posts/:postId.
func (h *Handlers) UpdatePost(c *gin.Context) {
	var req posts.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidArgumentError("body", "request body must be valid JSON"))
		return
	}

	view, err := h.posts.Update(c.Request.Context(), c.Param("postId"), callerID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeletePost handles DELETE /posts/:postId.
func (h *Handlers) DeletePost(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), c.Param("postId"), callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}

// ToggleLike handles POST /posts/:postId/like.
func (h *Handlers) ToggleLike(c *gin.Context) {
	resp, err := h.posts.ToggleLike(c.Request.Context(), c.Param("postId"), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.RecordLikeToggle(resp.Liked)
	c.JSON(http.StatusOK, resp)
}

// ListPosts handles GET /posts.
func (h *Handlers) ListPosts(c *gin.Context) {
	req, err := pageRequestFromQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.posts.List(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Feed handles GET /feed.
func (h *Handlers) Feed(c *gin.Context) {
	radius, err := floatQuery(c, "radius", 50)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	start := time.Now()
	feed, err := h.posts.Feed(c.Request.Context(), posts.FeedRequest{
		CallerID:    callerID(c),
		RadiusMiles: radius,
		Limit:       limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.RecordFeedRequest(time.Since(start))
	c.JSON(http.StatusOK, feed)
}

// UpsertProfile handles PUT /profiles/me.
func (h *Handlers) UpsertProfile(c *gin.Context) {
	var req profiles.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewInvalidArgumentError("body", "request body must be valid JSON"))
		return
	}

	view, err := h.profiles.Upsert(c.Request.Context(), callerID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetOwnProfile handles GET /profiles/me.
func (h *Handlers) GetOwnProfile(c *gin.Context) {
	view, err := h.profiles.Get(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetProfile handles GET /profiles/:userId.
func (h *Handlers) GetProfile(c *gin.Context) {
	view, err := h.profiles.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeleteProfile handles DELETE /profiles/me.
func (h *Handlers) DeleteProfile(c *gin.Context) {
	if err := h.profiles.Delete(c.Request.Context(), callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile deleted successfully"})
}

// SearchMusicians handles GET /search/musicians.
func (h *Handlers) SearchMusicians(c *gin.Context) {
	radius, err := floatQuery(c, "radius", 50)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	start := time.Now()
	result, err := h.profiles.SearchMusicians(c.Request.Context(), profiles.SearchRequest{
		CallerID:    callerID(c),
		Instruments: c.QueryArray("instrument"),
		Genres:      c.QueryArray("genre"),
		RadiusMiles: radius,
		Limit:       limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.metrics.RecordMusicianSearch(time.Since(start))
	c.JSON(http.StatusOK, result)
}

// pageRequestFromQuery builds a post listing request from query params.
// Instrument filters arrive as repeated "instrument" params in
// "slug", "slug:min" or "slug:min:max" form; genres as repeated "genre"
// params.
func pageRequestFromQuery(c *gin.Context) (posts.PageRequest, error) {
	req := posts.NewPageRequest()
	req.CallerID = callerID(c)
	req.Cursor = c.Query("cursor")
	req.AuthorID = c.Query("userId")

	// A listing is scoped to at most one post type; repeated params are
	// a client error, not a first-wins.
	postTypes := c.QueryArray("postType")
	if len(postTypes) > 1 {
		return posts.PageRequest{}, apperrors.NewInvalidArgumentError("postType", "only one postType may be requested")
	}
	if len(postTypes) == 1 {
		req.PostType = postTypes[0]
	}
	req.GeohashPrefix = c.Query("geohash")
	req.Genres = c.QueryArray("genre")

	limit, err := intQuery(c, "limit", req.Limit)
	if err != nil {
		return posts.PageRequest{}, err
	}
	req.Limit = limit

	instruments, err := posts.ParseInstrumentRequirements(c.QueryArray("instrument"))
	if err != nil {
		return posts.PageRequest{}, err
	}
	req.Instruments = instruments

	if mode := c.Query("instrumentMode"); mode != "" {
		req.InstrumentMode = posts.Mode(mode)
	}
	if mode := c.Query("genreMode"); mode != "" {
		req.GenreMode = posts.Mode(mode)
	}
	if sortField := c.Query("sort"); sortField != "" {
		req.SortField = sortField
	}
	if order := c.Query("order"); order != "" {
		req.SortOrder = order
	}

	return req, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidArgumentError(name, name+" must be an integer")
	}
	return value, nil
}

func floatQuery(c *gin.Context, name string, fallback float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.NewInvalidArgumentError(name, name+" must be a number")
	}
	return value, nil
}
