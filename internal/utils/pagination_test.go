package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPageBounds(t *testing.T) {
	cases := []struct {
		page, size int
		off, limit int
	}{
		{0, 0, 0, DefaultPageSize},
		{1, 10, 0, 10},
		{3, 10, 20, 10},
		{-4, 5, 0, 5},
		{2, 1000, MaxPageSize, MaxPageSize},
	}
	for _, tc := range cases {
		off, limit := PageBounds(tc.page, tc.size)
		if off != tc.off || limit != tc.limit {
			t.Fatalf("PageBounds(%d, %d) = %d, %d; want %d, %d", tc.page, tc.size, off, limit, tc.off, tc.limit)
		}
	}
}
