package listings

import (
	"fmt"
	"strings"
)

// Sort orders for listing queries.
type Sort string

const (
	SortNewestFirst Sort = "newest"
	SortPriceAsc    Sort = "price_asc"
	SortPriceDesc   Sort = "price_desc"
)

// ParseSort maps a wire value to a Sort, defaulting to newest-first.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortPriceAsc, SortPriceDesc:
		return Sort(s)
	default:
		return SortNewestFirst
	}
}

// Filter is the full set of optional query predicates. Zero values mean "no
// constraint". Text fields match case-insensitively against the stored
// lowercase keys; Address runs a full-text prefix match.
type Filter struct {
	SearchObject  string `json:"search_object,omitempty"`
	SearchCity    string `json:"search_city,omitempty"`
	MicroDistrict string `json:"micro_district,omitempty"`
	Address       string `json:"address,omitempty"`
	Rooms         string `json:"rooms,omitempty"`
	HouseState    string `json:"house_state,omitempty"`

	DateFrom string `json:"date_from,omitempty"` // inclusive, YYYY-MM-DD
	DateTo   string `json:"date_to,omitempty"`   // inclusive, YYYY-MM-DD

	PriceMin          *float64 `json:"price_min,omitempty"`
	PriceMax          *float64 `json:"price_max,omitempty"`
	PricePerSquareMin *float64 `json:"price_per_square_min,omitempty"`
	PricePerSquareMax *float64 `json:"price_per_square_max,omitempty"`
	AreaSquareMin     *float64 `json:"area_square_min,omitempty"`
	AreaSquareMax     *float64 `json:"area_square_max,omitempty"`
	AreaLotMin        *float64 `json:"area_lot_min,omitempty"`
	AreaLotMax        *float64 `json:"area_lot_max,omitempty"`

	OnlyFavorites     bool `json:"only_favorites,omitempty"`
	OnlyNew           bool `json:"only_new,omitempty"`
	OnlyPriceDrops    bool `json:"only_price_drops,omitempty"`
	OnlyPriceIncrease bool `json:"only_price_increase,omitempty"`
}

// compiled holds the two WHERE stages of a query: raw predicates evaluated
// against latest-state columns, and derived predicates that need the joined
// version-count / price-change values.
type compiled struct {
	raw     []string
	rawArgs []any
	derived []string
}

// compile turns a Filter into SQL predicate fragments. Inverted numeric
// ranges are kept as-is; they match nothing, which is the contract.
func compileFilter(f Filter) compiled {
	var c compiled
	eqKey := func(col, raw string) {
		if k := NormalizeKey(raw); k != "" {
			c.raw = append(c.raw, fmt.Sprintf("ll.%s = ?", col))
			c.rawArgs = append(c.rawArgs, k)
		}
	}
	eqKey("search_object_lc", f.SearchObject)
	eqKey("search_city_lc", f.SearchCity)
	eqKey("micro_district_lc", f.MicroDistrict)
	eqKey("house_state_lc", f.HouseState)
	if r := strings.TrimSpace(f.Rooms); r != "" {
		c.raw = append(c.raw, "TRIM(IFNULL(ll.rooms, '')) = ?")
		c.rawArgs = append(c.rawArgs, r)
	}
	if q := ftsQuery(f.Address); q != "" {
		c.raw = append(c.raw, "ll.rowid IN (SELECT rowid FROM latest_address_fts WHERE latest_address_fts MATCH ?)")
		c.rawArgs = append(c.rawArgs, q)
	}
	if f.DateFrom != "" {
		c.raw = append(c.raw, "ll.collected_on_latest >= ?")
		c.rawArgs = append(c.rawArgs, f.DateFrom)
	}
	if f.DateTo != "" {
		c.raw = append(c.raw, "ll.collected_on_latest <= ?")
		c.rawArgs = append(c.rawArgs, f.DateTo)
	}
	rng := func(col string, lo, hi *float64) {
		if lo != nil {
			c.raw = append(c.raw, fmt.Sprintf("ll.%s >= ?", col))
			c.rawArgs = append(c.rawArgs, *lo)
		}
		if hi != nil {
			c.raw = append(c.raw, fmt.Sprintf("ll.%s <= ?", col))
			c.rawArgs = append(c.rawArgs, *hi)
		}
	}
	rng("price_value", f.PriceMin, f.PriceMax)
	rng("price_per_square_value", f.PricePerSquareMin, f.PricePerSquareMax)
	rng("area_square_value", f.AreaSquareMin, f.AreaSquareMax)
	rng("area_lot_value", f.AreaLotMin, f.AreaLotMax)
	if f.OnlyFavorites {
		c.raw = append(c.raw, "ll.selected = 1")
	}

	if f.OnlyNew {
		c.derived = append(c.derived, "version_count <= 1")
	}
	if f.OnlyPriceDrops {
		c.derived = append(c.derived, "price_change_percent < 0")
	}
	if f.OnlyPriceIncrease {
		c.derived = append(c.derived, "price_change_percent > 0")
	}
	return c
}

func (c compiled) rawWhere() string {
	if len(c.raw) == 0 {
		return "1=1"
	}
	return strings.Join(c.raw, " AND ")
}

func (c compiled) derivedWhere() string {
	if len(c.derived) == 0 {
		return "1=1"
	}
	return strings.Join(c.derived, " AND ")
}

// ftsQuery builds an FTS5 match expression from free text: each token is
// quoted (neutralizing operator syntax) and prefix-matched.
func ftsQuery(raw string) string {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		parts = append(parts, `"`+f+`"*`)
	}
	return strings.Join(parts, " ")
}
