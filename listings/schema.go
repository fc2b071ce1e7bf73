package listings

// The history table keeps every collected snapshot append-only. Derived
// columns (parsed numbers and lowercase keys) are maintained by the writer so
// that queries never normalize at read time.
const schemaListings = `
CREATE TABLE IF NOT EXISTS listings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT,
    collected_on TEXT,
    search_city TEXT,
    search_object TEXT,
    micro_district TEXT,
    address TEXT,
    price TEXT,
    price_per_square TEXT,
    rooms TEXT,
    area_square TEXT,
    area_lot TEXT,
    house_state TEXT,
    offer_type TEXT,
    amenities TEXT,
    floors TEXT,
    advertisement_url TEXT,
    selected INTEGER NOT NULL DEFAULT 0,
    search_city_lc TEXT,
    search_object_lc TEXT,
    micro_district_lc TEXT,
    address_lc TEXT,
    house_state_lc TEXT,
    offer_type_lc TEXT,
    price_value REAL,
    price_per_square_value REAL,
    area_square_value REAL,
    area_lot_value REAL
);
`

// requiredColumns lists every column the engine reads or writes, keyed by
// name with the DDL used when the column has to be added to an existing
// table.
var requiredColumns = []struct {
	name string
	ddl  string
}{
	{"external_id", "TEXT"},
	{"collected_on", "TEXT"},
	{"search_city", "TEXT"},
	{"search_object", "TEXT"},
	{"micro_district", "TEXT"},
	{"address", "TEXT"},
	{"price", "TEXT"},
	{"price_per_square", "TEXT"},
	{"rooms", "TEXT"},
	{"area_square", "TEXT"},
	{"area_lot", "TEXT"},
	{"house_state", "TEXT"},
	{"offer_type", "TEXT"},
	{"amenities", "TEXT"},
	{"floors", "TEXT"},
	{"advertisement_url", "TEXT"},
	{"selected", "INTEGER NOT NULL DEFAULT 0"},
	{"search_city_lc", "TEXT"},
	{"search_object_lc", "TEXT"},
	{"micro_district_lc", "TEXT"},
	{"address_lc", "TEXT"},
	{"house_state_lc", "TEXT"},
	{"offer_type_lc", "TEXT"},
	{"price_value", "REAL"},
	{"price_per_square_value", "REAL"},
	{"area_square_value", "REAL"},
	{"area_lot_value", "REAL"},
}

// deprecatedColumns force a table rebuild when present; SQLite cannot drop
// columns referenced by old indexes in place across the versions we support.
var deprecatedColumns = []string{"title", "raw_content", "collected_at"}

const schemaListingsIndexes = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_listings_dedup
    ON listings (external_id, collected_on);
CREATE INDEX IF NOT EXISTS idx_listings_filter
    ON listings (search_object_lc, search_city_lc, rooms, micro_district_lc, collected_on);
CREATE INDEX IF NOT EXISTS idx_listings_price_value ON listings (price_value DESC);
CREATE INDEX IF NOT EXISTS idx_listings_collected_on ON listings (collected_on);
`

// latest_listings keeps exactly one row per identity, upserted on save. The
// collected_on_latest guard in the writer keeps it monotonic.
const schemaLatest = `
CREATE TABLE IF NOT EXISTS latest_listings (
    external_id TEXT NOT NULL,
    search_object TEXT NOT NULL DEFAULT '',
    collected_on_latest TEXT,
    search_city TEXT,
    micro_district TEXT,
    address TEXT,
    price TEXT,
    price_per_square TEXT,
    rooms TEXT,
    area_square TEXT,
    area_lot TEXT,
    house_state TEXT,
    offer_type TEXT,
    amenities TEXT,
    floors TEXT,
    advertisement_url TEXT,
    selected INTEGER NOT NULL DEFAULT 0,
    search_city_lc TEXT,
    search_object_lc TEXT,
    micro_district_lc TEXT,
    address_lc TEXT,
    house_state_lc TEXT,
    offer_type_lc TEXT,
    price_value REAL,
    price_per_square_value REAL,
    area_square_value REAL,
    area_lot_value REAL,
    PRIMARY KEY (external_id, search_object)
);
CREATE INDEX IF NOT EXISTS idx_latest_filter
    ON latest_listings (search_object, search_city, rooms, micro_district, collected_on_latest);
CREATE INDEX IF NOT EXISTS idx_latest_collected_on ON latest_listings (collected_on_latest);
CREATE INDEX IF NOT EXISTS idx_latest_price_value ON latest_listings (price_value DESC);
`

// External-content FTS index over latest addresses. The triggers keep the
// shadow table in step with latest_listings; queries join on rowid.
const schemaLatestFTS = `
CREATE VIRTUAL TABLE IF NOT EXISTS latest_address_fts USING fts5(
    address,
    micro_district,
    content='latest_listings',
    content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);
CREATE TRIGGER IF NOT EXISTS latest_listings_ai AFTER INSERT ON latest_listings BEGIN
    INSERT INTO latest_address_fts(rowid, address, micro_district)
    VALUES (new.rowid, new.address, new.micro_district);
END;
CREATE TRIGGER IF NOT EXISTS latest_listings_ad AFTER DELETE ON latest_listings BEGIN
    INSERT INTO latest_address_fts(latest_address_fts, rowid, address, micro_district)
    VALUES ('delete', old.rowid, old.address, old.micro_district);
END;
CREATE TRIGGER IF NOT EXISTS latest_listings_au AFTER UPDATE ON latest_listings BEGIN
    INSERT INTO latest_address_fts(latest_address_fts, rowid, address, micro_district)
    VALUES ('delete', old.rowid, old.address, old.micro_district);
    INSERT INTO latest_address_fts(rowid, address, micro_district)
    VALUES (new.rowid, new.address, new.micro_district);
END;
`
