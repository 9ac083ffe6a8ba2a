package model

import (
	"fmt"
	"strings"
)

// Sort is a listing sort mode.
type Sort string

const (
	SortBest          Sort = "best"
	SortHot           Sort = "hot"
	SortNew           Sort = "new"
	SortRising        Sort = "rising"
	SortTop           Sort = "top"
	SortControversial Sort = "controversial"
)

// Sorts lists every sort mode in menu order.
var Sorts = []Sort{SortBest, SortHot, SortNew, SortRising, SortTop, SortControversial}

// ParseSort parses a sort mode name.
func ParseSort(s string) (Sort, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, sort := range Sorts {
		if string(sort) == s {
			return sort, nil
		}
	}
	return "", fmt.Errorf("unknown sort %q", s)
}

// Ranged reports whether the sort takes a time range.
func (s Sort) Ranged() bool {
	return s == SortTop || s == SortControversial
}

// Next cycles to the following sort mode.
func (s Sort) Next() Sort {
	for i, sort := range Sorts {
		if sort == s {
			return Sorts[(i+1)%len(Sorts)]
		}
	}
	return Sorts[0]
}

// Valid time ranges for ranged sorts.
var TimeRanges = []string{"hour", "day", "week", "month", "year", "all"}

// ValidTimeRange reports whether r is accepted by ranged sorts.
func ValidTimeRange(r string) bool {
	for _, tr := range TimeRanges {
		if tr == r {
			return true
		}
	}
	return false
}
