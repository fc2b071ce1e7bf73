package listings

import (
	"context"
	"fmt"
)

// queryCTE is the shared front of every listing query: derived per-identity
// values joined onto latest-state, then the two filter stages. History rows
// with a blank external id join on the empty key and so never attach to a
// latest-state identity.
const queryCTE = `
WITH version_counts AS (
    SELECT TRIM(IFNULL(external_id, '')) AS ext_key,
           COALESCE(NULLIF(TRIM(search_object), ''), '') AS obj_key,
           COUNT(*) AS version_count
    FROM listings
    GROUP BY ext_key, obj_key
),
base_prices AS (
    SELECT ext_key, obj_key, price_value AS base_price
    FROM (
        SELECT TRIM(IFNULL(external_id, '')) AS ext_key,
               COALESCE(NULLIF(TRIM(search_object), ''), '') AS obj_key,
               price_value,
               ROW_NUMBER() OVER (
                   PARTITION BY TRIM(IFNULL(external_id, '')),
                                COALESCE(NULLIF(TRIM(search_object), ''), '')
                   ORDER BY collected_on ASC, id ASC
               ) AS rn
        FROM listings
    )
    WHERE rn = 1
),
matched AS (
    SELECT ll.*,
           IFNULL(vc.version_count, 0) AS version_count,
           CASE WHEN ll.price_value IS NOT NULL
                 AND bp.base_price IS NOT NULL AND bp.base_price > 0
                THEN (ll.price_value - bp.base_price) * 100.0 / bp.base_price
           END AS price_change_percent
    FROM latest_listings ll
    LEFT JOIN version_counts vc
        ON vc.ext_key = ll.external_id AND vc.obj_key = ll.search_object
    LEFT JOIN base_prices bp
        ON bp.ext_key = ll.external_id AND bp.obj_key = ll.search_object
    WHERE %s
),
filtered AS (
    SELECT * FROM matched WHERE %s
)`

// queryFinal attaches whole-set window aggregates to every filtered row, so a
// single page fetch also yields the headline statistics for the full set.
const queryFinal = `,
final AS (
    SELECT f.*,
           COUNT(*) OVER () AS total_count,
           AVG(f.price_value) OVER () AS avg_price,
           AVG(f.price_per_square_value) OVER () AS avg_price_per_square,
           MIN(f.price_value) OVER () AS min_price,
           MAX(f.price_value) OVER () AS max_price,
           FIRST_VALUE(f.advertisement_url) OVER (
               ORDER BY (f.price_value IS NULL), f.price_value ASC
           ) AS min_price_url,
           FIRST_VALUE(f.advertisement_url) OVER (
               ORDER BY (f.price_value IS NULL), f.price_value DESC
           ) AS max_price_url
    FROM filtered f
)
SELECT IFNULL(collected_on_latest, ''), IFNULL(search_object, ''),
       IFNULL(search_city, ''), IFNULL(micro_district, ''), IFNULL(address, ''),
       IFNULL(price, ''), IFNULL(price_per_square, ''), IFNULL(rooms, ''),
       IFNULL(area_square, ''), IFNULL(area_lot, ''), IFNULL(house_state, ''),
       IFNULL(offer_type, ''), IFNULL(amenities, ''), IFNULL(floors, ''),
       IFNULL(advertisement_url, ''), IFNULL(external_id, ''), selected,
       version_count, price_change_percent, price_value, price_per_square_value,
       total_count, avg_price, avg_price_per_square, min_price, max_price,
       IFNULL(min_price_url, ''), IFNULL(max_price_url, '')
FROM final
WHERE %s
ORDER BY %s
LIMIT ?`

const defaultPageSize = 50

// Query runs one filtered, sorted, keyset-paginated page fetch. Aggregates in
// the result cover the entire filtered set regardless of which page was
// requested. An offset past the end of the set is clamped to the last
// non-empty page; the effective offset is reported in the result.
func (s *Store) Query(ctx context.Context, f Filter, sort Sort, limit, offset int) (QueryResult, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	c := compileFilter(f)
	page, aggs, err := s.queryPage(ctx, c, sort, limit, offset)
	if err != nil {
		return QueryResult{}, err
	}
	if len(page) == 0 && offset > 0 {
		total, err := s.countFiltered(ctx, c)
		if err != nil {
			return QueryResult{}, err
		}
		offset = 0
		if total > 0 {
			offset = (total - 1) / limit * limit
		}
		if page, aggs, err = s.queryPage(ctx, c, sort, limit, offset); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{Listings: page, Aggregates: aggs, Offset: offset}, nil
}

func (s *Store) queryPage(ctx context.Context, c compiled, sort Sort, limit, offset int) ([]Listing, Aggregates, error) {
	after := "1=1"
	var afterArgs []any
	if offset > 0 {
		tuple, ok, err := s.seekTuple(ctx, c, sort, offset)
		if err != nil {
			return nil, Aggregates{}, err
		}
		if !ok {
			return nil, Aggregates{}, nil
		}
		after, afterArgs = afterPredicate(sort, tuple)
	}
	q := fmt.Sprintf(queryCTE+queryFinal, c.rawWhere(), c.derivedWhere(), after, orderClause(sort))
	args := append(append(append([]any{}, c.rawArgs...), afterArgs...), limit)
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, Aggregates{}, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var (
		page []Listing
		aggs Aggregates
	)
	for rows.Next() {
		var (
			l        Listing
			selected int
		)
		err := rows.Scan(
			&l.CollectedOn, &l.SearchObject, &l.SearchCity, &l.MicroDistrict,
			&l.Address, &l.Price, &l.PricePerSquare, &l.Rooms, &l.AreaSquare,
			&l.AreaLot, &l.HouseState, &l.OfferType, &l.Amenities, &l.Floors,
			&l.AdvertisementURL, &l.ExternalID, &selected,
			&l.VersionCount, &l.PriceChangePercent, &l.PriceValue, &l.PricePerSquareValue,
			&aggs.TotalCount, &aggs.AveragePrice, &aggs.AveragePricePerSquare,
			&aggs.MinPrice, &aggs.MaxPrice, &aggs.MinPriceURL, &aggs.MaxPriceURL,
		)
		if err != nil {
			return nil, Aggregates{}, fmt.Errorf("scan listing: %w", err)
		}
		l.Selected = selected != 0
		page = append(page, l)
	}
	if err := rows.Err(); err != nil {
		return nil, Aggregates{}, err
	}
	return page, aggs, nil
}

func (s *Store) countFiltered(ctx context.Context, c compiled) (int, error) {
	q := fmt.Sprintf(queryCTE+`
SELECT COUNT(*) FROM filtered`, c.rawWhere(), c.derivedWhere())
	var n int
	if err := s.DB.QueryRowContext(ctx, q, c.rawArgs...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count filtered: %w", err)
	}
	return n, nil
}
