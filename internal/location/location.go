// Package location resolves postal codes into durable geographic
// records. It is a cache-aside layer over the document store: a zip code
// costs at most one call to the rate-limited geocoding provider, after
// which every resolution is served from storage (fronted by Redis when
// available).
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bandmate/bandmate/internal/cache"
	"github.com/bandmate/bandmate/internal/docstore"
	apperrors "github.com/bandmate/bandmate/internal/errors"
	"github.com/bandmate/bandmate/internal/geo"
	"github.com/bandmate/bandmate/internal/geocode"
	"github.com/bandmate/bandmate/internal/telemetry"
)

// CacheCollection is the durable collection holding resolved zip codes.
const CacheCollection = "location_cache"

// hotTTL bounds how long a record lives in Redis. The durable record has
// no expiry; a postal code's coordinates are treated as stable.
const hotTTL = 24 * time.Hour

// Record is a resolved postal code. Immutable once cached.
type Record struct {
	ZipCode          string  `json:"zipCode"`
	FormattedAddress string  `json:"formattedAddress"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	PlaceID          string  `json:"placeId,omitempty"`
	Geohash          string  `json:"geohash"`
}

// Coordinate returns the record's coordinate pair.
func (r *Record) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
}

// Resolver resolves postal codes to location records.
type Resolver interface {
	Resolve(ctx context.Context, zipCode string) (*Record, error)
}

// Service implements Resolver with the cache-aside pattern.
type Service struct {
	records  docstore.Collection
	geocoder geocode.Geocoder
	hot      *cache.RedisService // optional, nil disables the hot layer
}

// NewService creates a location service. The Redis service may be nil.
func NewService(store docstore.Store, geocoder geocode.Geocoder, hot *cache.RedisService) *Service {
	return &Service{
		records:  store.Collection(CacheCollection),
		geocoder: geocoder,
		hot:      hot,
	}
}

// Resolve maps a 5-digit zip code to a Record. Misses call the provider,
// store the result, then return it, so a second caller for the same zip
// observes a cache hit. Concurrent misses for the same key are not
// de-duplicated; both provider calls produce the same record and the
// last write wins.
func (s *Service) Resolve(ctx context.Context, zipCode string) (*Record, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "resolve_location",
		"zip_code":  zipCode,
	})

	if !isValidZip(zipCode) {
		return nil, apperrors.NewInvalidArgumentError("zipCode", "zip code must be exactly 5 digits").
			WithHTTPStatus(422)
	}

	if record := s.fromHotCache(ctx, zipCode); record != nil {
		return record, nil
	}

	doc, err := s.records.Get(ctx, zipCode)
	if err == nil {
		record, decodeErr := recordFromDocument(doc)
		if decodeErr != nil {
			return nil, apperrors.NewStorageError("get_location", decodeErr)
		}
		s.toHotCache(ctx, record)
		return record, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, apperrors.NewStorageError("get_location", err)
	}

	logger.Debug("Location cache miss, calling geocoding provider")

	results, err := s.geocoder.Geocode(ctx, zipCode)
	if err != nil {
		// Provider failure: nothing is cached, no partial record returned.
		return nil, err
	}
	if len(results) == 0 {
		return nil, apperrors.NewNotFoundError("location").
			WithDetails(fmt.Sprintf("no geocoding results for zip code %s", zipCode))
	}

	first := results[0]
	hash, err := geo.EncodeGeohash(first.Lat, first.Lng, geo.DefaultGeohashPrecision)
	if err != nil {
		return nil, apperrors.NewUpstreamError("google_geocoding", "geocode",
			fmt.Errorf("provider returned out-of-range coordinates: %w", err))
	}

	record := &Record{
		ZipCode:          zipCode,
		FormattedAddress: first.FormattedAddress,
		Lat:              first.Lat,
		Lng:              first.Lng,
		PlaceID:          first.PlaceID,
		Geohash:          hash,
	}

	// Store before returning so a concurrent second caller is likely to
	// observe a hit instead of issuing a duplicate provider call.
	data, err := recordToDocument(record)
	if err != nil {
		return nil, apperrors.NewStorageError("store_location", err)
	}
	if err := s.records.Set(ctx, zipCode, data); err != nil {
		return nil, apperrors.NewStorageError("store_location", err)
	}
	s.toHotCache(ctx, record)

	logger.WithFields(map[string]interface{}{
		"geohash":           record.Geohash,
		"formatted_address": record.FormattedAddress,
	}).Info("Resolved and cached location")

	return record, nil
}

func (s *Service) fromHotCache(ctx context.Context, zipCode string) *Record {
	if s.hot == nil {
		return nil
	}
	var record Record
	if err := s.hot.GetJSON(ctx, hotKey(zipCode), &record); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			telemetry.GetContextualLogger(ctx).WithError(err).Warn("Redis read failed, falling back to store")
		}
		return nil
	}
	return &record
}

func (s *Service) toHotCache(ctx context.Context, record *Record) {
	if s.hot == nil {
		return
	}
	if err := s.hot.SetJSON(ctx, hotKey(record.ZipCode), record, hotTTL); err != nil {
		telemetry.GetContextualLogger(ctx).WithError(err).Warn("Redis write failed")
	}
}

func hotKey(zipCode string) string {
	return "location:" + zipCode
}

func isValidZip(zipCode string) bool {
	if len(zipCode) != 5 {
		return false
	}
	for i := 0; i < len(zipCode); i++ {
		if zipCode[i] < '0' || zipCode[i] > '9' {
			return false
		}
	}
	return true
}

func recordToDocument(record *Record) (map[string]interface{}, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func recordFromDocument(doc *docstore.Document) (*Record, error) {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if record.ZipCode == "" {
		record.ZipCode = doc.ID
	}
	return &record, nil
}
