package query

import (
	"context"
	"reflect"
	"time"
)

// Status is the lifecycle state of a query.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// Entry is a snapshot of one cached query.
type Entry struct {
	Key    Key
	Status Status
	Data   any
	Err    error
	// Empty marks a successful fetch that found nothing.
	Empty bool
	// Fetching is true while a request runs, including background
	// refetches that keep showing Data.
	Fetching bool
	// Stale marks data invalidated since it was fetched.
	Stale bool
	// Failures counts consecutive failed fetches.
	Failures  int
	UpdatedAt time.Time
	// Version increases on every change. Watchers may receive snapshots out
	// of order and should drop ones older than what they hold.
	Version uint64
}

// View is how a page should render an entry.
type View int

const (
	ViewLoading View = iota
	ViewError
	ViewEmpty
	ViewReady
)

// View classifies the entry. Data already on hand wins over a later error,
// and an empty result is never an error.
func (e Entry) View() View {
	switch {
	case e.Empty:
		return ViewEmpty
	case e.Data != nil:
		return ViewReady
	case e.Status == StatusError:
		return ViewError
	default:
		return ViewLoading
	}
}

// IsOffline reports repeated failures.
func (e Entry) IsOffline() bool {
	return e.Failures >= 2
}

// Fetcher loads the data for a key.
type Fetcher func(ctx context.Context) (any, error)

// Func adapts a typed fetch function.
func Func[T any](fn func(context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// Value returns the entry's data as T.
func Value[T any](e Entry) (T, bool) {
	v, ok := e.Data.(T)
	return v, ok
}

func isEmptyResult(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
