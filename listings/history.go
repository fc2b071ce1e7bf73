package listings

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Metric selects which parsed numeric column trend aggregation averages.
type Metric string

const (
	MetricPrice          Metric = "price"
	MetricPricePerSquare Metric = "price_per_square"
)

// column maps the metric onto its whitelisted column. Anything else averages
// price; metrics never reach SQL as raw text.
func (m Metric) column() string {
	if m == MetricPricePerSquare {
		return "price_per_square_value"
	}
	return "price_value"
}

// TrendPoint is one averaged observation date.
type TrendPoint struct {
	Date    string  `json:"date"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// CityPoint is one (city, date) cell of a cross-city comparison.
type CityPoint struct {
	City                  string   `json:"city"`
	Date                  string   `json:"date"`
	AveragePrice          *float64 `json:"average_price"`
	AveragePricePerSquare *float64 `json:"average_price_per_square"`
	Count                 int      `json:"count"`
}

// CityFilter narrows a city comparison with the filters shared across all
// compared cities.
type CityFilter struct {
	SearchObject string `json:"search_object,omitempty"`
	Rooms        string `json:"rooms,omitempty"`
	HouseState   string `json:"house_state,omitempty"`
	DateFrom     string `json:"date_from,omitempty"`
	DateTo       string `json:"date_to,omitempty"`
}

// History returns every snapshot of one identity, newest first, each
// annotated with the percent change of its price relative to the identity's
// oldest priced snapshot. A blank external id names no identity and yields an
// empty history.
func (s *Store) History(ctx context.Context, id Identity) ([]Listing, error) {
	id = id.Normalized()
	if id.ExternalID == "" {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT IFNULL(collected_on, ''), IFNULL(search_object, ''), IFNULL(search_city, ''),
       IFNULL(micro_district, ''), IFNULL(address, ''), IFNULL(price, ''),
       IFNULL(price_per_square, ''), IFNULL(rooms, ''), IFNULL(area_square, ''),
       IFNULL(area_lot, ''), IFNULL(house_state, ''), IFNULL(offer_type, ''),
       IFNULL(amenities, ''), IFNULL(floors, ''), IFNULL(advertisement_url, ''),
       IFNULL(external_id, ''), selected, price_value, price_per_square_value
FROM listings
WHERE TRIM(IFNULL(external_id, '')) = ?
  AND COALESCE(NULLIF(TRIM(search_object), ''), '') = ?
ORDER BY collected_on DESC, id DESC`, id.ExternalID, id.SearchObject)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Listing
	for rows.Next() {
		var (
			l        Listing
			selected int
		)
		err := rows.Scan(&l.CollectedOn, &l.SearchObject, &l.SearchCity,
			&l.MicroDistrict, &l.Address, &l.Price, &l.PricePerSquare, &l.Rooms,
			&l.AreaSquare, &l.AreaLot, &l.HouseState, &l.OfferType, &l.Amenities,
			&l.Floors, &l.AdvertisementURL, &l.ExternalID, &selected,
			&l.PriceValue, &l.PricePerSquareValue)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		l.Selected = selected != 0
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Base price is the oldest priced snapshot; rows are newest-first so it is
	// the last priced entry.
	var base *float64
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].PriceValue != nil {
			base = out[i].PriceValue
			break
		}
	}
	for i := range out {
		out[i].VersionCount = len(out)
		if base != nil && *base > 0 && out[i].PriceValue != nil && i != len(out)-1 {
			pct := (*out[i].PriceValue - *base) * 100.0 / *base
			out[i].PriceChangePercent = &pct
		}
	}
	return out, nil
}

// Trend averages one metric per collection date across a set of identities,
// producing one point per date that had at least one parsed observation.
func (s *Store) Trend(ctx context.Context, ids []Identity, metric Metric) ([]TrendPoint, error) {
	where, args := identityPredicate(ids)
	if where == "" {
		return nil, nil
	}
	col := metric.column()
	q := fmt.Sprintf(`
SELECT collected_on, AVG(%s), COUNT(*)
FROM listings
WHERE (%s) AND %s IS NOT NULL AND collected_on IS NOT NULL
GROUP BY collected_on
ORDER BY collected_on ASC`, col, where, col)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Date, &p.Average, &p.Count); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		if !validDate(p.Date) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CityComparison returns per (city, date) price averages for a set of cities
// under shared filters. Cities are matched case-insensitively and duplicates
// collapse before aggregation.
func (s *Store) CityComparison(ctx context.Context, cities []string, f CityFilter) ([]CityPoint, error) {
	keys := make([]string, 0, len(cities))
	seen := make(map[string]bool)
	for _, c := range cities {
		k := NormalizeKey(c)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	conds := []string{
		"search_city_lc IN (?" + strings.Repeat(", ?", len(keys)-1) + ")",
		"collected_on IS NOT NULL",
	}
	args := make([]any, 0, len(keys)+4)
	for _, k := range keys {
		args = append(args, k)
	}
	if k := NormalizeKey(f.SearchObject); k != "" {
		conds = append(conds, "search_object_lc = ?")
		args = append(args, k)
	}
	if r := strings.TrimSpace(f.Rooms); r != "" {
		conds = append(conds, "TRIM(IFNULL(rooms, '')) = ?")
		args = append(args, r)
	}
	if k := NormalizeKey(f.HouseState); k != "" {
		conds = append(conds, "house_state_lc = ?")
		args = append(args, k)
	}
	if f.DateFrom != "" {
		conds = append(conds, "collected_on >= ?")
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		conds = append(conds, "collected_on <= ?")
		args = append(args, f.DateTo)
	}

	q := fmt.Sprintf(`
SELECT IFNULL(search_city, ''), collected_on,
       AVG(price_value), AVG(price_per_square_value), COUNT(*)
FROM listings
WHERE %s
GROUP BY search_city_lc, collected_on
ORDER BY search_city_lc ASC, collected_on ASC`, strings.Join(conds, " AND "))
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query city comparison: %w", err)
	}
	defer rows.Close()

	var out []CityPoint
	for rows.Next() {
		var p CityPoint
		if err := rows.Scan(&p.City, &p.Date, &p.AveragePrice, &p.AveragePricePerSquare, &p.Count); err != nil {
			return nil, fmt.Errorf("scan city point: %w", err)
		}
		if !validDate(p.Date) {
			continue
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// identityPredicate builds an OR-joined match over normalized identities.
// Blank external ids are dropped; an empty return means nothing to match.
func identityPredicate(ids []Identity) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, id := range ids {
		id = id.Normalized()
		if id.ExternalID == "" {
			continue
		}
		conds = append(conds,
			`(TRIM(IFNULL(external_id, '')) = ? AND COALESCE(NULLIF(TRIM(search_object), ''), '') = ?)`)
		args = append(args, id.ExternalID, id.SearchObject)
	}
	return strings.Join(conds, " OR "), args
}

// validDate reports whether a stored collection date parses as YYYY-MM-DD.
// Rows that predate the current writer occasionally carry malformed dates;
// chart aggregation skips them instead of failing.
func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
