package listings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arnasbieliauskas/ntduomenys/dbopen"
)

// Store owns the listings database: the append-only history table, the
// latest-per-identity table and its FTS shadow index.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger

	// now is injectable for tests that need a fixed collection date.
	now func() time.Time
}

// Open opens (creating if needed) the database at path and returns a Store.
// Initialize must be called before the store is queried.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := dbopen.Open(path,
		dbopen.WithMkdirAll(),
		dbopen.WithCacheSize(-8000),
	)
	if err != nil {
		return nil, fmt.Errorf("open listings db: %w", err)
	}
	return &Store{DB: db, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Initialize brings the schema to the current shape: creates tables, rebuilds
// the history table when deprecated columns linger, adds missing columns,
// backfills derived values, and installs the latest-listings projection and
// its full-text index. Any error here means the store is unusable.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schemaListings); err != nil {
		return fmt.Errorf("create listings table: %w", err)
	}
	cols, err := s.tableColumns(ctx, "listings")
	if err != nil {
		return err
	}
	if needsRebuild(cols) {
		s.logger.Info("rebuilding listings table", "reason", "deprecated columns present")
		if err := s.rebuildListings(ctx, cols); err != nil {
			return fmt.Errorf("rebuild listings table: %w", err)
		}
		if cols, err = s.tableColumns(ctx, "listings"); err != nil {
			return err
		}
	}
	if err := s.ensureColumns(ctx, cols); err != nil {
		return err
	}
	if err := s.backfillDerived(ctx); err != nil {
		return fmt.Errorf("backfill derived columns: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, schemaListingsIndexes); err != nil {
		return fmt.Errorf("create listings indexes: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, schemaLatest); err != nil {
		return fmt.Errorf("create latest_listings: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, schemaLatestFTS); err != nil {
		return fmt.Errorf("create address fts: %w", err)
	}
	if err := s.backfillLatest(ctx); err != nil {
		return fmt.Errorf("backfill latest_listings: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `ANALYZE; PRAGMA optimize;`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()
	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name, typ string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

func needsRebuild(cols map[string]bool) bool {
	for _, dep := range deprecatedColumns {
		if cols[dep] {
			return true
		}
	}
	return false
}

// rebuildListings recreates the table with the current shape and copies over
// every column both shapes share. The copy runs in one transaction so a crash
// never leaves a half-migrated table.
func (s *Store) rebuildListings(ctx context.Context, old map[string]bool) error {
	var shared []string
	shared = append(shared, "id")
	for _, rc := range requiredColumns {
		if old[rc.name] {
			shared = append(shared, rc.name)
		}
	}
	list := strings.Join(shared, ", ")
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmts := []string{
			strings.Replace(schemaListings, "listings", "listings_new", 1),
			fmt.Sprintf(`INSERT INTO listings_new (%s) SELECT %s FROM listings`, list, list),
			`DROP TABLE listings`,
			`ALTER TABLE listings_new RENAME TO listings`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ensureColumns(ctx context.Context, cols map[string]bool) error {
	for _, rc := range requiredColumns {
		if cols[rc.name] {
			continue
		}
		q := fmt.Sprintf(`ALTER TABLE listings ADD COLUMN %s %s`, rc.name, rc.ddl)
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("add column %s: %w", rc.name, err)
		}
		s.logger.Info("added listings column", "column", rc.name)
	}
	return nil
}

// backfillDerived fills the parsed-number and lowercase columns for rows that
// predate them. Parsing happens in Go so every row goes through the same
// normalizer as fresh ingests.
func (s *Store) backfillDerived(ctx context.Context) error {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, search_city, search_object, micro_district, address, house_state,
       offer_type, price, price_per_square, area_square, area_lot
FROM listings
WHERE (search_city_lc IS NULL AND search_city IS NOT NULL AND TRIM(search_city) <> '')
   OR (address_lc IS NULL AND address IS NOT NULL AND TRIM(address) <> '')
   OR (price_value IS NULL AND price IS NOT NULL AND TRIM(price) <> '')`)
	if err != nil {
		return err
	}
	type pending struct {
		id                             int64
		city, object, district, addr   sql.NullString
		state, offer                   sql.NullString
		price, perSquare, area, lot    sql.NullString
	}
	var work []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.city, &p.object, &p.district, &p.addr,
			&p.state, &p.offer, &p.price, &p.perSquare, &p.area, &p.lot); err != nil {
			rows.Close()
			return err
		}
		work = append(work, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(work) == 0 {
		return nil
	}
	s.logger.Info("backfilling derived columns", "rows", len(work))
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
UPDATE listings SET
    search_city_lc = ?, search_object_lc = ?, micro_district_lc = ?,
    address_lc = ?, house_state_lc = ?, offer_type_lc = ?,
    price_value = ?, price_per_square_value = ?,
    area_square_value = ?, area_lot_value = ?
WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range work {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := stmt.ExecContext(ctx,
				keyOrNil(p.city.String), keyOrNil(p.object.String), keyOrNil(p.district.String),
				keyOrNil(p.addr.String), keyOrNil(p.state.String), keyOrNil(p.offer.String),
				numOrNil(p.price.String), numOrNil(p.perSquare.String),
				numOrNil(p.area.String), numOrNil(p.lot.String),
				p.id)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// backfillLatest seeds latest_listings from history for identities it does
// not know yet, picking each identity's newest snapshot.
func (s *Store) backfillLatest(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO latest_listings (
    external_id, search_object, collected_on_latest, search_city,
    micro_district, address, price, price_per_square, rooms, area_square,
    area_lot, house_state, offer_type, amenities, floors, advertisement_url,
    selected,
    search_city_lc, search_object_lc, micro_district_lc, address_lc,
    house_state_lc, offer_type_lc,
    price_value, price_per_square_value, area_square_value, area_lot_value
)
SELECT TRIM(external_id), COALESCE(TRIM(search_object), ''), collected_on,
       search_city, micro_district, address, price, price_per_square, rooms,
       area_square, area_lot, house_state, offer_type, amenities, floors,
       advertisement_url, selected,
       search_city_lc, search_object_lc, micro_district_lc, address_lc,
       house_state_lc, offer_type_lc,
       price_value, price_per_square_value, area_square_value, area_lot_value
FROM (
    SELECT l.*, ROW_NUMBER() OVER (
        PARTITION BY TRIM(IFNULL(l.external_id, '')), COALESCE(TRIM(l.search_object), '')
        ORDER BY l.collected_on DESC, l.id DESC
    ) AS rn
    FROM listings l
    WHERE TRIM(IFNULL(l.external_id, '')) <> ''
)
WHERE rn = 1
ON CONFLICT (external_id, search_object) DO NOTHING`)
	return err
}
