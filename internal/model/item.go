package model

import (
	"fmt"
	"time"
)

// Item is a loanable catalogue entry. Reserved is a cached sum of the
// quantities of its held reservations.
type Item struct {
	ID          int64     `json:"id"`
	Name        Localized `json:"name"`
	Description Localized `json:"description"`
	Location    string    `json:"location"`
	Quantity    int       `json:"quantity"`
	Reserved    int       `json:"reserved"`
	Available   int       `json:"available"`
	ImageRef    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Locations.
const (
	LocationHeerlen    = "Heerlen"
	LocationMaastricht = "Maastricht"
	LocationSittard    = "Sittard"
)

// DefaultImageRef is served for items without an uploaded image.
const DefaultImageRef = "/images/default-item.png"

// ValidLocation reports whether loc is one of the known sites.
func ValidLocation(loc string) bool {
	switch loc {
	case LocationHeerlen, LocationMaastricht, LocationSittard:
		return true
	}
	return false
}

// ItemImageRef returns the URL an item's image is served from.
func ItemImageRef(id int64, hasImage bool) string {
	if !hasImage {
		return DefaultImageRef
	}
	return fmt.Sprintf("/api/items/%d/image", id)
}

// ItemInput is the editable part of an item.
type ItemInput struct {
	Name        Localized
	Description Localized
	Location    string
	Quantity    int
}

// Validate checks the fields an admin supplies when creating or replacing an item.
func (in ItemInput) Validate() error {
	if in.Name.IsZero() {
		return Invalid("name", "required")
	}
	if !ValidLocation(in.Location) {
		return Invalid("location", "must be one of %s, %s, %s", LocationHeerlen, LocationMaastricht, LocationSittard)
	}
	if in.Quantity < 0 {
		return Invalid("quantity", "must not be negative")
	}
	return nil
}

// StockLine summarises an item's counters.
type StockLine struct {
	ItemID    int64     `json:"item_id"`
	Name      Localized `json:"name"`
	Location  string    `json:"location"`
	Quantity  int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}

// Drift is an item whose cached reserved counter disagrees with the sum of
// its held reservations.
type Drift struct {
	ItemID   int64 `json:"item_id"`
	Cached   int   `json:"cached"`
	Computed int   `json:"computed"`
}
