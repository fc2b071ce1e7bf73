package listings

import "strings"

// Record is one candidate snapshot handed over by the scraper collaborator.
// All value fields carry the raw display text exactly as it appeared on the
// page; the writer derives normalized keys and parsed numbers on save.
type Record struct {
	ExternalID       string `json:"external_id"`
	SearchObject     string `json:"search_object"`
	SearchCity       string `json:"search_city"`
	MicroDistrict    string `json:"micro_district"`
	Address          string `json:"address"`
	Price            string `json:"price"`
	PricePerSquare   string `json:"price_per_square"`
	Rooms            string `json:"rooms"`
	AreaSquare       string `json:"area_square"`
	AreaLot          string `json:"area_lot"`
	HouseState       string `json:"house_state"`
	OfferType        string `json:"offer_type"`
	Amenities        string `json:"amenities"`
	Floors           string `json:"floors"`
	AdvertisementURL string `json:"advertisement_url"`
	Selected         bool   `json:"selected"`
}

// Identity names one tracked listing lineage. A listing re-appearing under a
// different search object is a distinct identity with its own history.
type Identity struct {
	ExternalID   string `json:"external_id"`
	SearchObject string `json:"search_object"`
}

// Normalized returns the identity with both components trimmed, matching how
// the writer stores them.
func (id Identity) Normalized() Identity {
	return Identity{
		ExternalID:   strings.TrimSpace(id.ExternalID),
		SearchObject: strings.TrimSpace(id.SearchObject),
	}
}

// SaveResult reports the outcome of one ingestion batch.
type SaveResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// Listing is one row returned by queries: the stored snapshot attributes plus
// the derived per-identity values (version count, percent price change).
type Listing struct {
	CollectedOn      string `json:"collected_on"`
	SearchObject     string `json:"search_object"`
	SearchCity       string `json:"search_city"`
	MicroDistrict    string `json:"micro_district"`
	Address          string `json:"address"`
	Price            string `json:"price"`
	PricePerSquare   string `json:"price_per_square"`
	Rooms            string `json:"rooms"`
	AreaSquare       string `json:"area_square"`
	AreaLot          string `json:"area_lot"`
	HouseState       string `json:"house_state"`
	OfferType        string `json:"offer_type"`
	Amenities        string `json:"amenities"`
	Floors           string `json:"floors"`
	AdvertisementURL string `json:"advertisement_url"`
	ExternalID       string `json:"external_id"`
	Selected         bool   `json:"selected"`

	VersionCount        int      `json:"version_count"`
	PriceChangePercent  *float64 `json:"price_change_percent"`
	PriceValue          *float64 `json:"price_value"`
	PricePerSquareValue *float64 `json:"price_per_square_value"`
}

// Aggregates are whole-filtered-set statistics. They are computed over every
// row matching the filters, not just the returned page.
type Aggregates struct {
	TotalCount            int      `json:"total_count"`
	AveragePrice          *float64 `json:"average_price"`
	AveragePricePerSquare *float64 `json:"average_price_per_square"`
	MinPrice              *float64 `json:"min_price"`
	MaxPrice              *float64 `json:"max_price"`
	MinPriceURL           string   `json:"min_price_url"`
	MaxPriceURL           string   `json:"max_price_url"`
}

// QueryResult is one page of listings plus the whole-set aggregates.
// Offset is the effective offset served, which may differ from the requested
// one when the requested page lay past the end of the result set.
type QueryResult struct {
	Listings   []Listing  `json:"listings"`
	Aggregates Aggregates `json:"aggregates"`
	Offset     int        `json:"offset"`
}
