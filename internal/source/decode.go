package source

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stagingloader/internal/domain"
)

const (
	catalogFields = 3 // id, title, genres
	ratingFields  = 4 // userId, entityId, rating, timestamp
)

// DecodeCatalog parses `id,title,genres`. Title and genres are kept verbatim.
func DecodeCatalog(fields []string) (domain.CatalogRecord, error) {
	if len(fields) != catalogFields {
		return domain.CatalogRecord{}, errors.Errorf("expected %d fields, got %d", catalogFields, len(fields))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return domain.CatalogRecord{}, errors.Wrap(err, "invalid id")
	}
	return domain.CatalogRecord{ID: id, Title: fields[1], Genres: fields[2]}, nil
}

// DecodeRating parses `userId,entityId,rating,timestamp`. The user id is
// kept as text and the timestamp is dropped; neither is validated.
func DecodeRating(fields []string) (domain.RatingEvent, error) {
	if len(fields) != ratingFields {
		return domain.RatingEvent{}, errors.Errorf("expected %d fields, got %d", ratingFields, len(fields))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return domain.RatingEvent{}, errors.Wrap(err, "invalid entity id")
	}
	rating, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return domain.RatingEvent{}, errors.Wrap(err, "invalid rating")
	}
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return domain.RatingEvent{}, errors.Errorf("invalid rating %q: not finite", fields[2])
	}
	return domain.RatingEvent{UserID: fields[0], EntityID: id, Rating: rating}, nil
}

// OpenCatalog opens the catalog file. Every line is a record unless
// skipHeader is set, in which case the first line is dropped.
func OpenCatalog(path string, opts Options, skipHeader bool) (*Source[domain.CatalogRecord], error) {
	skip := 0
	if skipHeader {
		skip = 1
	}
	return Open[domain.CatalogRecord](path, skip, opts, DecodeCatalog)
}

// OpenRatings opens the ratings file, always skipping exactly one header line.
func OpenRatings(path string, opts Options) (*Source[domain.RatingEvent], error) {
	return Open[domain.RatingEvent](path, 1, opts, DecodeRating)
}
