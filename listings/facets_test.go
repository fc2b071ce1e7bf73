package listings

import (
	"context"
	"fmt"
	"testing"
)

func TestDistinctValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	cities, err := s.DistinctValues(ctx, FacetSearchCity, FacetScope{})
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if fmt.Sprint(cities) != fmt.Sprint([]string{"Kaunas", "Vilnius"}) {
		t.Errorf("cities = %v, want [Kaunas Vilnius]", cities)
	}

	objects, err := s.DistinctValues(ctx, FacetSearchObject, FacetScope{SearchCity: "Kaunas"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(objects) != fmt.Sprint([]string{"Butai"}) {
		t.Errorf("objects scoped to Kaunas = %v, want [Butai]", objects)
	}

	// The field being listed is not narrowed by its own scope value.
	cities, err = s.DistinctValues(ctx, FacetSearchCity, FacetScope{SearchCity: "Kaunas"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cities) != 2 {
		t.Errorf("self-scoped cities = %v, want both cities", cities)
	}
}

func TestDistinctValuesCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	districts, err := s.DistinctValues(ctx, FacetMicroDistrict,
		FacetScope{SearchCity: "vilnius", SearchObject: "butai", Rooms: "2"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(districts) != fmt.Sprint([]string{"Šnipiškės"}) {
		t.Errorf("districts = %v, want [Šnipiškės]", districts)
	}
}

func TestDistinctAddressesRequireCity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	addrs, err := s.DistinctValues(ctx, FacetAddress, FacetScope{})
	if err != nil {
		t.Fatal(err)
	}
	if addrs != nil {
		t.Errorf("addresses without a city = %v, want nil", addrs)
	}

	addrs, err = s.DistinctValues(ctx, FacetAddress, FacetScope{SearchCity: "Kaunas"})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(addrs) != fmt.Sprint([]string{"Laisvės al. 5"}) {
		t.Errorf("Kaunas addresses = %v, want [Laisvės al. 5]", addrs)
	}
}

func TestDistinctValuesUnknownField(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.DistinctValues(context.Background(), FacetField("password"), FacetScope{}); err == nil {
		t.Fatal("unknown facet field: want error")
	}
}

func TestNumericBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedInventory(t, s)

	min, max, err := s.NumericBounds(ctx, BoundsPrice, FacetScope{SearchCity: "Vilnius", SearchObject: "Butai"})
	if err != nil {
		t.Fatalf("NumericBounds: %v", err)
	}
	if min == nil || *min != 95000 {
		t.Errorf("min = %v, want 95000", min)
	}
	if max == nil || *max != 210000 {
		t.Errorf("max = %v, want 210000", max)
	}
}

func TestNumericBoundsEmptyScope(t *testing.T) {
	s := newTestStore(t)
	min, max, err := s.NumericBounds(context.Background(), BoundsAreaLot, FacetScope{})
	if err != nil {
		t.Fatal(err)
	}
	if min != nil || max != nil {
		t.Errorf("bounds over empty store = (%v, %v), want (nil, nil)", min, max)
	}
}

func TestNumericBoundsUnknownField(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.NumericBounds(context.Background(), BoundsField("rooms"), FacetScope{}); err == nil {
		t.Fatal("unknown bounds field: want error")
	}
}
