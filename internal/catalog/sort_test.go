package catalog

import "testing"

func ids(books []Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSortByRatingAscDescAreReverses(t *testing.T) {
	books := []Book{{ID: "a", Rating: 3.2}, {ID: "b", Rating: 4.8}, {ID: "c", Rating: 1.5}, {ID: "d", Rating: 4.1}}

	asc := ids(SortByRating(books, SortAscending))
	desc := ids(SortByRating(books, SortDescending))

	if want := []string{"c", "a", "d", "b"}; !equalIDs(asc, want) {
		t.Fatalf("ascending = %v, want %v", asc, want)
	}
	for i := range asc {
		if asc[i] != desc[len(desc)-1-i] {
			t.Fatalf("descending %v is not the reverse of ascending %v", desc, asc)
		}
	}
	if got := ids(books); !equalIDs(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("input reordered to %v, want untouched", got)
	}
}

func TestSortByRatingStableForTies(t *testing.T) {
	books := []Book{{ID: "x", Rating: 4}, {ID: "y", Rating: 2}, {ID: "z", Rating: 4}, {ID: "w", Rating: 4}}

	if got, want := ids(SortByRating(books, SortAscending)), []string{"y", "x", "z", "w"}; !equalIDs(got, want) {
		t.Fatalf("ascending = %v, want %v", got, want)
	}
	if got, want := ids(SortByRating(books, SortDescending)), []string{"x", "z", "w", "y"}; !equalIDs(got, want) {
		t.Fatalf("descending = %v, want %v", got, want)
	}
	if got := ids(SortByRating(books, SortNone)); !equalIDs(got, ids(books)) {
		t.Fatalf("none = %v, want original order", got)
	}
}

func TestSortOrderToggleCycle(t *testing.T) {
	o := SortNone
	var seen []SortOrder
	for i := 0; i < 4; i++ {
		o = o.Next()
		seen = append(seen, o)
	}
	want := []SortOrder{SortAscending, SortDescending, SortAscending, SortDescending}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("toggle %d = %v, want %v", i, seen[i], want[i])
		}
	}
}
