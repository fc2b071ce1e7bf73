package listings

import (
	"context"
	"fmt"
	"math"
	"testing"
)

// seedInventory stores a small mixed inventory: three Vilnius flats, one
// Kaunas flat, one house, one listing with an unparsable price.
func seedInventory(t *testing.T, s *Store) {
	t.Helper()
	setDay(t, s, "2024-02-01")
	batch := []Record{
		{ExternalID: "1-1", SearchObject: "Butai", SearchCity: "Vilnius", MicroDistrict: "Šnipiškės",
			Address: "Lvivo g. 25", Price: "150 000 €", PricePerSquare: "3 000 €/m²", Rooms: "2",
			AdvertisementURL: "https://example.test/1-1"},
		{ExternalID: "1-2", SearchObject: "Butai", SearchCity: "Vilnius", MicroDistrict: "Žirmūnai",
			Address: "Tuskulėnų g. 10", Price: "95 000 €", PricePerSquare: "2 500 €/m²", Rooms: "1",
			AdvertisementURL: "https://example.test/1-2"},
		{ExternalID: "1-3", SearchObject: "Butai", SearchCity: "Vilnius", MicroDistrict: "Šnipiškės",
			Address: "Kalvarijų g. 2", Price: "210 000 €", Rooms: "3",
			AdvertisementURL: "https://example.test/1-3"},
		{ExternalID: "2-1", SearchObject: "Butai", SearchCity: "Kaunas", Address: "Laisvės al. 5",
			Price: "80 000 €", Rooms: "2", AdvertisementURL: "https://example.test/2-1"},
		{ExternalID: "3-1", SearchObject: "Namai", SearchCity: "Vilnius", Address: "Liepų g. 7",
			Price: "320 000 €", AdvertisementURL: "https://example.test/3-1"},
		{ExternalID: "1-4", SearchObject: "Butai", SearchCity: "Vilnius", Address: "Ukmergės g. 100",
			Price: "kaina sutartinė", Rooms: "2", AdvertisementURL: "https://example.test/1-4"},
	}
	if _, err := s.SaveBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestQueryAggregatesWholeSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	res, err := s.Query(ctx, Filter{SearchCity: "Vilnius", SearchObject: "Butai"}, SortPriceAsc, 2, 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("page size = %d, want 2", len(res.Listings))
	}
	a := res.Aggregates
	if a.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", a.TotalCount)
	}
	// Averages cover only priced rows: 95k, 150k, 210k.
	if a.AveragePrice == nil || math.Abs(*a.AveragePrice-(95000+150000+210000)/3.0) > 1e-6 {
		t.Errorf("AveragePrice = %v, want mean of priced rows", a.AveragePrice)
	}
	if a.MinPrice == nil || *a.MinPrice != 95000 {
		t.Errorf("MinPrice = %v, want 95000", a.MinPrice)
	}
	if a.MaxPrice == nil || *a.MaxPrice != 210000 {
		t.Errorf("MaxPrice = %v, want 210000", a.MaxPrice)
	}
	if a.MinPriceURL != "https://example.test/1-2" {
		t.Errorf("MinPriceURL = %q, want listing 1-2", a.MinPriceURL)
	}
	if a.MaxPriceURL != "https://example.test/1-3" {
		t.Errorf("MaxPriceURL = %q, want listing 1-3", a.MaxPriceURL)
	}

	// Same aggregates from a different page of the same filtered set.
	res2, err := s.Query(ctx, Filter{SearchCity: "Vilnius", SearchObject: "Butai"}, SortPriceAsc, 2, 2)
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if !aggregatesEqual(res2.Aggregates, a) {
		t.Errorf("page 2 aggregates = %+v, want %+v", res2.Aggregates, a)
	}
}

func aggregatesEqual(a, b Aggregates) bool {
	eq := func(x, y *float64) bool {
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return math.Abs(*x-*y) < 1e-6
	}
	return a.TotalCount == b.TotalCount &&
		eq(a.AveragePrice, b.AveragePrice) &&
		eq(a.AveragePricePerSquare, b.AveragePricePerSquare) &&
		eq(a.MinPrice, b.MinPrice) &&
		eq(a.MaxPrice, b.MaxPrice) &&
		a.MinPriceURL == b.MinPriceURL &&
		a.MaxPriceURL == b.MaxPriceURL
}

func TestQuerySortPriceNullsLast(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	res, err := s.Query(ctx, Filter{SearchCity: "Vilnius", SearchObject: "Butai"}, SortPriceAsc, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(res.Listings))
	for _, l := range res.Listings {
		ids = append(ids, l.ExternalID)
	}
	want := []string{"1-2", "1-1", "1-3", "1-4"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("price-asc order = %v, want %v", ids, want)
	}

	res, err = s.Query(ctx, Filter{SearchCity: "Vilnius", SearchObject: "Butai"}, SortPriceDesc, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	ids = ids[:0]
	for _, l := range res.Listings {
		ids = append(ids, l.ExternalID)
	}
	want = []string{"1-3", "1-1", "1-2", "1-4"}
	if fmt.Sprint(ids) != fmt.Sprint(want) {
		t.Errorf("price-desc order = %v, want %v", ids, want)
	}
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	cases := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"city", Filter{SearchCity: "vilnius"}, 5},
		{"object", Filter{SearchObject: "Namai"}, 1},
		{"rooms", Filter{Rooms: "2"}, 3},
		{"micro district", Filter{MicroDistrict: "šnipiškės"}, 2},
		{"price range", Filter{PriceMin: f64(90000), PriceMax: f64(160000)}, 2},
		{"inverted range", Filter{PriceMin: f64(200000), PriceMax: f64(100000)}, 0},
		{"date range excludes all", Filter{DateFrom: "2024-03-01"}, 0},
		{"address fts", Filter{Address: "Tuskulėnų"}, 1},
		{"address fts prefix", Filter{Address: "tusk"}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Query(ctx, tc.filter, SortNewestFirst, 50, 0)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if res.Aggregates.TotalCount != tc.want {
				t.Errorf("TotalCount = %d, want %d", res.Aggregates.TotalCount, tc.want)
			}
			if len(res.Listings) != tc.want {
				t.Errorf("rows = %d, want %d", len(res.Listings), tc.want)
			}
		})
	}
}

func TestQueryDerivedFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	// Second observation: 1-1 drops, 1-2 rises, the others are not re-seen.
	setDay(t, s, "2024-02-10")
	batch := []Record{
		{ExternalID: "1-1", SearchObject: "Butai", SearchCity: "Vilnius", Price: "140 000 €",
			Rooms: "2", AdvertisementURL: "https://example.test/1-1"},
		{ExternalID: "1-2", SearchObject: "Butai", SearchCity: "Vilnius", Price: "99 000 €",
			Rooms: "1", AdvertisementURL: "https://example.test/1-2"},
	}
	if _, err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	res, err := s.Query(ctx, Filter{OnlyPriceDrops: true}, SortNewestFirst, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Aggregates.TotalCount != 1 || res.Listings[0].ExternalID != "1-1" {
		t.Errorf("price drops = %+v, want only 1-1", res.Listings)
	}
	pct := res.Listings[0].PriceChangePercent
	if pct == nil || *pct > -6.0 || *pct < -7.0 {
		t.Errorf("price change percent = %v, want ≈ -6.67", pct)
	}

	res, err = s.Query(ctx, Filter{OnlyPriceIncrease: true}, SortNewestFirst, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Aggregates.TotalCount != 1 || res.Listings[0].ExternalID != "1-2" {
		t.Errorf("price increases = %+v, want only 1-2", res.Listings)
	}

	res, err = s.Query(ctx, Filter{OnlyNew: true}, SortNewestFirst, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Aggregates.TotalCount != 4 {
		t.Errorf("never-re-seen count = %d, want 4", res.Aggregates.TotalCount)
	}
	for _, l := range res.Listings {
		if l.ExternalID == "1-1" || l.ExternalID == "1-2" {
			t.Errorf("re-seen listing %s in never-re-seen result", l.ExternalID)
		}
	}
}

func TestQueryFavoritesFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	id := Identity{ExternalID: "1-2", SearchObject: "Butai"}
	if err := s.SetFavorite(ctx, id, true); err != nil {
		t.Fatal(err)
	}
	res, err := s.Query(ctx, Filter{OnlyFavorites: true}, SortNewestFirst, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Aggregates.TotalCount != 1 || res.Listings[0].ExternalID != "1-2" {
		t.Errorf("favorites = %+v, want only 1-2", res.Listings)
	}

	if err := s.SetFavorite(ctx, id, false); err != nil {
		t.Fatal(err)
	}
	res, err = s.Query(ctx, Filter{OnlyFavorites: true}, SortNewestFirst, 50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Aggregates.TotalCount != 0 {
		t.Errorf("favorites after toggle off = %d, want 0", res.Aggregates.TotalCount)
	}
}

// Concatenating every page must reproduce the unbounded result exactly, with
// no duplicates or omissions, even when many rows tie on the sort key.
func TestQueryPaginationComplete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	setDay(t, s, "2024-02-01")

	var batch []Record
	for i := 0; i < 23; i++ {
		price := "100 000 €"
		switch i % 3 {
		case 1:
			price = "200 000 €"
		case 2:
			price = "" // unpriced tail
		}
		batch = append(batch, Record{
			ExternalID:       fmt.Sprintf("9-%02d", i),
			SearchObject:     "Butai",
			SearchCity:       "Vilnius",
			Price:            price,
			AdvertisementURL: fmt.Sprintf("https://example.test/9-%02d", i),
		})
	}
	if _, err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	for _, sort := range []Sort{SortNewestFirst, SortPriceAsc, SortPriceDesc} {
		t.Run(string(sort), func(t *testing.T) {
			full, err := s.Query(ctx, Filter{}, sort, 100, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(full.Listings) != 23 {
				t.Fatalf("full set = %d rows, want 23", len(full.Listings))
			}

			const pageSize = 5
			var paged []string
			for off := 0; off < 23; off += pageSize {
				res, err := s.Query(ctx, Filter{}, sort, pageSize, off)
				if err != nil {
					t.Fatalf("page at offset %d: %v", off, err)
				}
				if res.Offset != off {
					t.Fatalf("offset %d clamped to %d unexpectedly", off, res.Offset)
				}
				for _, l := range res.Listings {
					paged = append(paged, l.ExternalID)
				}
			}
			if len(paged) != 23 {
				t.Fatalf("concatenated pages = %d rows, want 23", len(paged))
			}
			for i, l := range full.Listings {
				if paged[i] != l.ExternalID {
					t.Fatalf("row %d: paged %s, full %s", i, paged[i], l.ExternalID)
				}
			}
		})
	}
}

func TestQueryClampsPastEnd(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	res, err := s.Query(ctx, Filter{SearchCity: "Vilnius", SearchObject: "Butai"}, SortNewestFirst, 3, 30)
	if err != nil {
		t.Fatal(err)
	}
	if res.Offset != 3 {
		t.Errorf("clamped offset = %d, want 3 (last page of 4 rows at size 3)", res.Offset)
	}
	if len(res.Listings) != 1 {
		t.Errorf("clamped page rows = %d, want 1", len(res.Listings))
	}
}

func TestQueryEmptySet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.Query(ctx, Filter{SearchCity: "Klaipėda"}, SortNewestFirst, 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Listings) != 0 || res.Aggregates.TotalCount != 0 || res.Offset != 0 {
		t.Errorf("empty set result = %+v, want empty page at offset 0", res)
	}
}

func f64(v float64) *float64 { return &v }
