package domain

// CatalogRecord is one row of the catalog (movies) file.
type CatalogRecord struct {
	ID     int64
	Title  string
	Genres string // "|"-joined sub-list, loaded as opaque text
}

// RatingEvent is one row of the ratings file. The timestamp column is not
// used downstream and is dropped at parse time.
type RatingEvent struct {
	UserID   string
	EntityID int64
	Rating   float64
}

// MeanRating is the reduced rating for one catalog entry.
type MeanRating struct {
	EntityID int64
	Mean     float64
}
