package listings

import (
	"context"
	"fmt"
	"strings"
)

// FacetField names one distinct-value lookup over latest-state.
type FacetField string

const (
	FacetSearchObject  FacetField = "search_object"
	FacetSearchCity    FacetField = "search_city"
	FacetRooms         FacetField = "rooms"
	FacetMicroDistrict FacetField = "micro_district"
	FacetAddress       FacetField = "address"
	FacetHouseState    FacetField = "house_state"
)

var facetColumns = map[FacetField]string{
	FacetSearchObject:  "search_object",
	FacetSearchCity:    "search_city",
	FacetRooms:         "rooms",
	FacetMicroDistrict: "micro_district",
	FacetAddress:       "address",
	FacetHouseState:    "house_state",
}

// FacetScope carries the already-chosen sibling filters that narrow a facet
// lookup. The field being listed is never scoped by its own value.
type FacetScope struct {
	SearchObject  string `json:"search_object,omitempty"`
	SearchCity    string `json:"search_city,omitempty"`
	Rooms         string `json:"rooms,omitempty"`
	MicroDistrict string `json:"micro_district,omitempty"`
	HouseState    string `json:"house_state,omitempty"`
}

// DistinctValues returns the sorted distinct values of one facet field over
// latest-state, narrowed by the scope. Unknown fields are an error. The
// address facet is only meaningful within a city; without one it returns
// empty rather than listing every address in the store.
func (s *Store) DistinctValues(ctx context.Context, field FacetField, scope FacetScope) ([]string, error) {
	col, ok := facetColumns[field]
	if !ok {
		return nil, fmt.Errorf("unknown facet field %q", field)
	}
	if field == FacetAddress && NormalizeKey(scope.SearchCity) == "" {
		return nil, nil
	}
	conds := []string{
		fmt.Sprintf("%s IS NOT NULL", col),
		fmt.Sprintf("TRIM(%s) <> ''", col),
	}
	var args []any
	addScope := func(self FacetField, scopeCol, raw string) {
		if field == self {
			return
		}
		if k := NormalizeKey(raw); k != "" {
			conds = append(conds, scopeCol+" = ?")
			args = append(args, k)
		}
	}
	addScope(FacetSearchObject, "search_object_lc", scope.SearchObject)
	addScope(FacetSearchCity, "search_city_lc", scope.SearchCity)
	addScope(FacetMicroDistrict, "micro_district_lc", scope.MicroDistrict)
	addScope(FacetHouseState, "house_state_lc", scope.HouseState)
	if field != FacetRooms {
		if r := strings.TrimSpace(scope.Rooms); r != "" {
			conds = append(conds, "TRIM(IFNULL(rooms, '')) = ?")
			args = append(args, r)
		}
	}

	q := fmt.Sprintf(`
SELECT DISTINCT TRIM(%s)
FROM latest_listings
WHERE %s
ORDER BY TRIM(%s) COLLATE NOCASE ASC`, col, strings.Join(conds, " AND "), col)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("facet %s: %w", field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// BoundsField names one parsed numeric column for min/max lookup.
type BoundsField string

const (
	BoundsPrice          BoundsField = "price"
	BoundsPricePerSquare BoundsField = "price_per_square"
	BoundsAreaSquare     BoundsField = "area_square"
	BoundsAreaLot        BoundsField = "area_lot"
)

var boundsColumns = map[BoundsField]string{
	BoundsPrice:          "price_value",
	BoundsPricePerSquare: "price_per_square_value",
	BoundsAreaSquare:     "area_square_value",
	BoundsAreaLot:        "area_lot_value",
}

// NumericBounds returns the min and max of one parsed numeric column over
// latest-state, narrowed by the scope. Both are nil when no scoped row has a
// parsed value.
func (s *Store) NumericBounds(ctx context.Context, field BoundsField, scope FacetScope) (min, max *float64, err error) {
	col, ok := boundsColumns[field]
	if !ok {
		return nil, nil, fmt.Errorf("unknown bounds field %q", field)
	}
	conds := []string{"1=1"}
	var args []any
	add := func(scopeCol, raw string) {
		if k := NormalizeKey(raw); k != "" {
			conds = append(conds, scopeCol+" = ?")
			args = append(args, k)
		}
	}
	add("search_object_lc", scope.SearchObject)
	add("search_city_lc", scope.SearchCity)
	add("micro_district_lc", scope.MicroDistrict)
	add("house_state_lc", scope.HouseState)
	if r := strings.TrimSpace(scope.Rooms); r != "" {
		conds = append(conds, "TRIM(IFNULL(rooms, '')) = ?")
		args = append(args, r)
	}

	q := fmt.Sprintf(`SELECT MIN(%s), MAX(%s) FROM latest_listings WHERE %s`,
		col, col, strings.Join(conds, " AND "))
	if err := s.DB.QueryRowContext(ctx, q, args...).Scan(&min, &max); err != nil {
		return nil, nil, fmt.Errorf("bounds %s: %w", field, err)
	}
	return min, max, nil
}
