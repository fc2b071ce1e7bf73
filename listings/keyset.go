package listings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// seekKey is the full ordering tuple of one row: price-null flag, price (0
// when null), recency date, identity. Together these form a total order for
// every supported sort, so pages never skip or repeat rows on ties.
type seekKey struct {
	priceNull    int
	price        float64
	collectedOn  string
	externalID   string
	searchObject string
}

// orderClause returns the ORDER BY expression for a sort. Every clause ends
// with recency and the full identity so the order is total; rows without a
// price sort last under both price directions.
func orderClause(sort Sort) string {
	const tie = "IFNULL(collected_on_latest, '') DESC, external_id DESC, search_object DESC"
	switch sort {
	case SortPriceAsc:
		return "(price_value IS NULL), IFNULL(price_value, 0) ASC, " + tie
	case SortPriceDesc:
		return "(price_value IS NULL), IFNULL(price_value, 0) DESC, " + tie
	default:
		return tie
	}
}

// seekTuple fetches the ordering tuple of the last row before the requested
// offset by running a one-row query over the identically sorted filtered set.
// ok is false when the offset lies past the end of the set.
func (s *Store) seekTuple(ctx context.Context, c compiled, sort Sort, offset int) (seekKey, bool, error) {
	q := fmt.Sprintf(queryCTE+`
SELECT (price_value IS NULL), IFNULL(price_value, 0),
       IFNULL(collected_on_latest, ''), external_id, search_object
FROM filtered
ORDER BY %s
LIMIT 1 OFFSET ?`, c.rawWhere(), c.derivedWhere(), orderClause(sort))
	args := append(append([]any{}, c.rawArgs...), offset-1)
	var k seekKey
	err := s.DB.QueryRowContext(ctx, q, args...).Scan(
		&k.priceNull, &k.price, &k.collectedOn, &k.externalID, &k.searchObject)
	if err == nil {
		return k, true, nil
	}
	if isNoRows(err) {
		return seekKey{}, false, nil
	}
	return seekKey{}, false, fmt.Errorf("seek tuple: %w", err)
}

// afterPredicate rewrites "rows strictly after k in sort order" as a
// lexicographic comparison over the ordering tuple.
func afterPredicate(sort Sort, k seekKey) (string, []any) {
	// Recency and identity always break ties descending.
	const tie = `(IFNULL(collected_on_latest, '') < ?
        OR (IFNULL(collected_on_latest, '') = ?
            AND (external_id < ? OR (external_id = ? AND search_object < ?))))`
	tieArgs := []any{k.collectedOn, k.collectedOn, k.externalID, k.externalID, k.searchObject}

	switch sort {
	case SortPriceAsc, SortPriceDesc:
		cmp := ">"
		if sort == SortPriceDesc {
			cmp = "<"
		}
		pred := fmt.Sprintf(`((price_value IS NULL) > ?
    OR ((price_value IS NULL) = ? AND IFNULL(price_value, 0) %s ?)
    OR ((price_value IS NULL) = ? AND IFNULL(price_value, 0) = ? AND %s))`, cmp, tie)
		args := []any{k.priceNull, k.priceNull, k.price, k.priceNull, k.price}
		return pred, append(args, tieArgs...)
	default:
		return "(" + tie + ")", tieArgs
	}
}
