package models

import (
	"math"
	"testing"
)

func TestPage_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{"zero", Page{}, Page{Page: 1, Limit: DefaultPageLimit}},
		{"negative", Page{Page: -3, Limit: -1}, Page{Page: 1, Limit: DefaultPageLimit}},
		{"limit capped", Page{Page: 2, Limit: 500}, Page{Page: 2, Limit: MaxPageLimit}},
		{"huge page", Page{Page: math.MaxInt, Limit: 10}, Page{Page: maxPage, Limit: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("Normalize(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPage_OffsetNeverNegative(t *testing.T) {
	for _, page := range []int{math.MaxInt, math.MaxInt / 50, math.MaxInt64 / 50, maxPage + 1} {
		if off := (Page{Page: page, Limit: MaxPageLimit}).Offset(); off < 0 {
			t.Errorf("Offset for page %d = %d", page, off)
		}
	}
	if off := (Page{Page: 3, Limit: 20}).Offset(); off != 40 {
		t.Errorf("Offset = %d, want 40", off)
	}
}
