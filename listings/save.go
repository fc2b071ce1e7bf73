package listings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/arnasbieliauskas/ntduomenys/dbopen"
)

const insertListingSQL = `
INSERT OR IGNORE INTO listings (
    external_id, collected_on, search_city, search_object, micro_district,
    address, price, price_per_square, rooms, area_square, area_lot,
    house_state, offer_type, amenities, floors, advertisement_url, selected,
    search_city_lc, search_object_lc, micro_district_lc, address_lc,
    house_state_lc, offer_type_lc,
    price_value, price_per_square_value, area_square_value, area_lot_value
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertLatestSQL = `
INSERT INTO latest_listings (
    external_id, search_object, collected_on_latest, search_city,
    micro_district, address, price, price_per_square, rooms, area_square,
    area_lot, house_state, offer_type, amenities, floors, advertisement_url,
    selected,
    search_city_lc, search_object_lc, micro_district_lc, address_lc,
    house_state_lc, offer_type_lc,
    price_value, price_per_square_value, area_square_value, area_lot_value
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id, search_object) DO UPDATE SET
    collected_on_latest = excluded.collected_on_latest,
    search_city = excluded.search_city,
    micro_district = excluded.micro_district,
    address = excluded.address,
    price = excluded.price,
    price_per_square = excluded.price_per_square,
    rooms = excluded.rooms,
    area_square = excluded.area_square,
    area_lot = excluded.area_lot,
    house_state = excluded.house_state,
    offer_type = excluded.offer_type,
    amenities = excluded.amenities,
    floors = excluded.floors,
    advertisement_url = excluded.advertisement_url,
    search_city_lc = excluded.search_city_lc,
    search_object_lc = excluded.search_object_lc,
    micro_district_lc = excluded.micro_district_lc,
    address_lc = excluded.address_lc,
    house_state_lc = excluded.house_state_lc,
    offer_type_lc = excluded.offer_type_lc,
    price_value = excluded.price_value,
    price_per_square_value = excluded.price_per_square_value,
    area_square_value = excluded.area_square_value,
    area_lot_value = excluded.area_lot_value
WHERE excluded.collected_on_latest >= latest_listings.collected_on_latest`

// SaveBatch writes one scrape batch: each record becomes a history row unless
// an identical (identity, day) snapshot already exists, and the identity's
// latest projection is upserted unless a newer snapshot is already there. The
// whole batch commits or rolls back as one transaction.
//
// Records with a blank external id are stored in history only; they carry no
// identity to project. The upsert deliberately leaves the selected flag
// untouched so favorites survive re-ingestion.
func (s *Store) SaveBatch(ctx context.Context, records []Record) (SaveResult, error) {
	var res SaveResult
	if len(records) == 0 {
		return res, nil
	}
	collectedOn := s.now().UTC().Format("2006-01-02")
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		res = SaveResult{}
		ins, err := tx.PrepareContext(ctx, insertListingSQL)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer ins.Close()
		up, err := tx.PrepareContext(ctx, upsertLatestSQL)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer up.Close()
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			extID := strings.TrimSpace(r.ExternalID)
			searchObj := strings.TrimSpace(r.SearchObject)
			out, err := ins.ExecContext(ctx,
				nullTrim(r.ExternalID), collectedOn, nullTrim(r.SearchCity),
				nullTrim(r.SearchObject), nullTrim(r.MicroDistrict), nullTrim(r.Address),
				nullTrim(r.Price), nullTrim(r.PricePerSquare), nullTrim(r.Rooms),
				nullTrim(r.AreaSquare), nullTrim(r.AreaLot), nullTrim(r.HouseState),
				nullTrim(r.OfferType), nullTrim(r.Amenities), nullTrim(r.Floors),
				nullTrim(r.AdvertisementURL), boolInt(r.Selected),
				keyOrNil(r.SearchCity), keyOrNil(r.SearchObject), keyOrNil(r.MicroDistrict),
				keyOrNil(r.Address), keyOrNil(r.HouseState), keyOrNil(r.OfferType),
				numOrNil(r.Price), numOrNil(r.PricePerSquare),
				numOrNil(r.AreaSquare), numOrNil(r.AreaLot),
			)
			if err != nil {
				return fmt.Errorf("insert listing %q: %w", extID, err)
			}
			n, err := out.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				res.Inserted++
			} else {
				res.Skipped++
			}
			if extID == "" {
				continue
			}
			_, err = up.ExecContext(ctx,
				extID, searchObj, collectedOn, nullTrim(r.SearchCity),
				nullTrim(r.MicroDistrict), nullTrim(r.Address), nullTrim(r.Price),
				nullTrim(r.PricePerSquare), nullTrim(r.Rooms), nullTrim(r.AreaSquare),
				nullTrim(r.AreaLot), nullTrim(r.HouseState), nullTrim(r.OfferType),
				nullTrim(r.Amenities), nullTrim(r.Floors), nullTrim(r.AdvertisementURL),
				boolInt(r.Selected),
				keyOrNil(r.SearchCity), keyOrNil(r.SearchObject), keyOrNil(r.MicroDistrict),
				keyOrNil(r.Address), keyOrNil(r.HouseState), keyOrNil(r.OfferType),
				numOrNil(r.Price), numOrNil(r.PricePerSquare),
				numOrNil(r.AreaSquare), numOrNil(r.AreaLot),
			)
			if err != nil {
				return fmt.Errorf("upsert latest %q: %w", extID, err)
			}
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}
	s.logger.Info("batch saved",
		"records", len(records), "inserted", res.Inserted, "skipped", res.Skipped)
	return res, nil
}

// nullTrim trims a raw value and maps blanks to NULL so that empty scrapes
// never pollute facets.
func nullTrim(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return t
}

// keyOrNil derives the lowercase match key, NULL when blank.
func keyOrNil(s string) any {
	k := NormalizeKey(s)
	if k == "" {
		return nil
	}
	return k
}

// numOrNil derives the parsed numeric value, NULL when unreadable.
func numOrNil(s string) any {
	v := ParseNumeric(s)
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
