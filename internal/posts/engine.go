package posts

import (
	"context"
	"errors"

	"github.com/bandmate/bandmate/internal/docstore"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/geo"
	"github.com/bandmate/bandmate/internal/telemetry"
)

// overfetchFactor sizes store batches relative to the page limit so that
// pages survive local filtering without a second round trip in the
// common case.
const overfetchFactor = 3

// maxBatchSize caps a single store scan regardless of the page limit.
const maxBatchSize = 300

// Page is one page of posts plus the cursor for the next one.
type Page struct {
	Items      []*View `json:"items"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// Engine executes paginated, filtered scans over the post collection.
//
// Filters split into two classes. Equality on post type and author,
// genre overlap (ANY mode) and the geohash prefix range are pushed down
// to the store. Instrument skill ranges and genre ALL mode are applied
// locally because the store cannot express them. The engine keeps
// fetching batches until the page fills or the collection is exhausted,
// advancing the cursor past every inspected document so filtered-out
// documents are never rescanned.
type Engine struct {
	posts docstore.Collection
}

// NewEngine creates an engine over the posts collection of store.
func NewEngine(store docstore.Store) *Engine {
	return &Engine{posts: store.Collection(Collection)}
}

// FetchPage runs one page fetch.
//
// NextCursor is set exactly when the page is full; a short page means
// the scan reached the end and there is nothing further to request. A
// cursor that no longer resolves (the post was deleted between pages)
// ends the scan the same way.
func (e *Engine) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "fetch_posts_page",
		"limit":     req.Limit,
	})

	query, err := e.buildQuery(req)
	if err != nil {
		return nil, err
	}

	batchSize := req.Limit * overfetchFactor
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	query.Limit = batchSize

	page := &Page{Items: make([]*View, 0, req.Limit)}
	cursor := req.Cursor
	batches := 0

	for len(page.Items) < req.Limit {
		query.StartAfter = cursor

		docs, err := e.posts.Query(ctx, query)
		if errors.Is(err, docstore.ErrCursorNotFound) {
			// The cursor document vanished mid-pagination. Treat the scan
			// as finished rather than failing the whole request.
			logger.WithField("cursor", cursor).Warn("Pagination cursor no longer exists, ending scan")
			break
		}
		if err != nil {
			return nil, apperrors.NewStorageError("query_posts", err)
		}
		if len(docs) == 0 {
			break
		}
		batches++

		for _, doc := range docs {
			// Advance past every inspected document, matching or not, so
			// the next batch never revisits it.
			cursor = doc.ID

			post, decodeErr := fromDocument(doc)
			if decodeErr != nil {
				logger.WithError(decodeErr).WithField("post_id", doc.ID).Warn("Skipping malformed post document")
				continue
			}
			if !matchesLocalFilters(post, req) {
				continue
			}

			page.Items = append(page.Items, post.View(req.CallerID))
			if len(page.Items) == req.Limit {
				break
			}
		}
	}

	if len(page.Items) == req.Limit {
		page.NextCursor = cursor
	}

	logger.WithFields(map[string]interface{}{
		"items":    len(page.Items),
		"batches":  batches,
		"has_more": page.NextCursor != "",
	}).Debug("Fetched posts page")

	return page, nil
}

// buildQuery translates the pushable part of the request into a store
// query. A geohash prefix forces geohash ascending ordering so the range
// scan and the cursor agree on document order.
func (e *Engine) buildQuery(req PageRequest) (docstore.Query, error) {
	q := docstore.Query{}

	if req.PostType != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "postType", Op: docstore.OpEqual, Value: req.PostType})
	}
	if req.AuthorID != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "userId", Op: docstore.OpEqual, Value: req.AuthorID})
	}
	if len(req.Genres) > 0 && req.GenreMode == ModeAny {
		q.Filters = append(q.Filters, docstore.Filter{Field: "genres", Op: docstore.OpArrayContainsAny, Value: req.Genres})
	}

	if req.GeohashPrefix != "" {
		lower, upper, err := geo.PrefixRange(req.GeohashPrefix)
		if err != nil {
			return docstore.Query{}, apperrors.NewInvalidArgumentError("geohash", err.Error())
		}
		q.Filters = append(q.Filters, docstore.Filter{Field: "geohash", Op: docstore.OpGreaterOrEqual, Value: lower})
		if upper != "" {
			q.Filters = append(q.Filters, docstore.Filter{Field: "geohash", Op: docstore.OpLessThan, Value: upper})
		}
		q.OrderField = "geohash"
		q.OrderDir = docstore.Ascending
		return q, nil
	}

	switch req.SortField {
	case SortLikes:
		q.OrderField = "likeCount"
	default:
		q.OrderField = "createdAt"
	}
	q.OrderDir = docstore.Descending
	if req.SortOrder == OrderAsc {
		q.OrderDir = docstore.Ascending
	}
	return q, nil
}

// matchesLocalFilters applies the predicates the store cannot evaluate.
func matchesLocalFilters(post *Post, req PageRequest) bool {
	if len(req.Genres) > 0 && req.GenreMode == ModeAll && !hasAllGenres(post, req.Genres) {
		return false
	}
	if len(req.Instruments) > 0 && !matchesInstruments(post, req.Instruments, req.InstrumentMode) {
		return false
	}
	return true
}

func hasAllGenres(post *Post, genres []string) bool {
	for _, want := range genres {
		found := false
		for _, have := range post.Genres {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchesInstruments(post *Post, required map[string]SkillRange, mode Mode) bool {
	for slug, bounds := range required {
		satisfied := false
		for _, inst := range post.Instruments {
			if inst.Name == slug && inst.SkillLevel >= bounds.Min && inst.SkillLevel <= bounds.Max {
				satisfied = true
				break
			}
		}
		if mode == ModeAll && !satisfied {
			return false
		}
		if mode == ModeAny && satisfied {
			return true
		}
	}
	return mode == ModeAll
}
