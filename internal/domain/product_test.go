package domain

import (
	"errors"
	"testing"
)

func TestProductValidateInvariants(t *testing.T) {
	p := latte()
	if errs := p.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid product, got %v", errs)
	}

	bad := Product{
		Category: "dessert",
		Sizes:    []Size{{Name: "S", PriceMinor: -1}, {Name: "s", PriceMinor: 1}},
		Options:  []Option{{Code: "a"}, {Code: "a"}},
	}
	want := []error{ErrProductNameRequired, ErrProductCategoryInvalid, ErrProductDuplicateSize, ErrProductDuplicateOption, ErrProductPriceInvalid}
	errs := bad.ValidateInvariants()
	for _, w := range want {
		found := false
		for _, err := range errs {
			if errors.Is(err, w) {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %v in %v", w, errs)
		}
	}
}

func TestProductFilterMatches(t *testing.T) {
	p := latte()
	p.SubCategoryID = "hot-coffee"
	p.Description = "Espresso with steamed milk"

	tests := []struct {
		name   string
		filter ProductFilter
		want   bool
	}{
		{name: "empty", filter: ProductFilter{}, want: true},
		{name: "category", filter: ProductFilter{Category: CategoryFood}, want: false},
		{name: "subcategory", filter: ProductFilter{SubCategoryID: "hot-coffee"}, want: true},
		{name: "query in description", filter: ProductFilter{Query: "STEAMED"}, want: true},
		{name: "query miss", filter: ProductFilter{Query: "bagel"}, want: false},
	}
	for _, tc := range tests {
		if got := tc.filter.Matches(p); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	p.Available = false
	if (ProductFilter{OnlyAvailable: true}).Matches(p) {
		t.Fatalf("unavailable product must be filtered out")
	}
}
