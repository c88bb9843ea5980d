package catalog

import "sort"

// SortOrder selects how book lists are ordered by rating.
type SortOrder int

const (
	SortNone SortOrder = iota
	SortAscending
	SortDescending
)

func (o SortOrder) String() string {
	switch o {
	case SortAscending:
		return "rating ↑"
	case SortDescending:
		return "rating ↓"
	default:
		return "unsorted"
	}
}

// Next returns the order after a toggle: none and descending go to
// ascending, ascending goes to descending.
func (o SortOrder) Next() SortOrder {
	if o == SortAscending {
		return SortDescending
	}
	return SortAscending
}

// SortByRating returns a sorted copy of books. Books with equal ratings keep
// their original relative order. SortNone returns the copy unchanged.
func SortByRating(books []Book, order SortOrder) []Book {
	out := make([]Book, len(books))
	copy(out, books)
	switch order {
	case SortAscending:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating < out[j].Rating })
	case SortDescending:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	}
	return out
}
