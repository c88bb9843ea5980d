package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const serverTimestampLayout = "2006-01-02 15:04:05"

// Genres lists the genres a book may be filed under, in menu order.
var Genres = []string{
	"Action",
	"Fantasy",
	"Dark-fantasy",
	"Science Fiction",
	"Mystery",
	"Thriller",
	"Romance",
	"Horror",
	"Historical Fiction",
	"Adventure",
	"Non-Fiction",
	"Biography",
	"Self-Help",
	"Young Adult",
	"Classic",
	"Poetry",
	"Other",
}

// IsGenre reports whether name is one of Genres.
func IsGenre(name string) bool {
	for _, g := range Genres {
		if g == name {
			return true
		}
	}
	return false
}

// Rating is a book score between MinRating and MaxRating.
type Rating float64

const (
	MinRating Rating = 1
	MaxRating Rating = 5
	starCount        = 5
)

// Stars splits the rating into filled and empty star counts. Partial stars
// round down, so 4.9 shows four filled stars.
func (r Rating) Stars() (filled, empty int) {
	filled = int(math.Floor(float64(r)))
	if filled < 0 {
		filled = 0
	}
	if filled > starCount {
		filled = starCount
	}
	return filled, starCount - filled
}

// Label formats the rating with one decimal place.
func (r Rating) Label() string {
	return strconv.FormatFloat(float64(r), 'f', 1, 64)
}

// Book is a catalogued book as the rest of shelf sees it.
type Book struct {
	ID               string
	Title            string
	Author           string
	Genre            string
	Rating           Rating
	Summary          string
	Description      string
	CoverImageURL    string
	OwnerIdentity    string
	OwnerDisplayName string
	CreatedAt        time.Time
}

// Comment is a reader comment attached to a book.
type Comment struct {
	ID                string
	BookID            string
	AuthorIdentity    string
	AuthorDisplayName string
	AuthorAvatarURL   string
	Text              string
	CreatedAt         time.Time
}

// BookInput carries the writable fields of a book.
type BookInput struct {
	Title            string
	Author           string
	Genre            string
	Rating           float64
	Summary          string
	Description      string
	CoverImageURL    string
	OwnerIdentity    string
	OwnerDisplayName string
}

// CommentInput carries the fields of a new comment.
type CommentInput struct {
	BookID            string
	Text              string
	AuthorIdentity    string
	AuthorDisplayName string
	AuthorAvatarURL   string
}

// bookWire mirrors the server's book document, including its
// extended-JSON quirks.
type bookWire struct {
	ID          wireID     `json:"_id"`
	Title       string     `json:"title"`
	Author      string     `json:"author"`
	Genre       string     `json:"genre"`
	Rating      wireNumber `json:"rating"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	CoverImage  string     `json:"coverImage"`
	UserEmail   string     `json:"userEmail"`
	UserName    string     `json:"userName"`
	CreatedAt   wireTime   `json:"created_at"`
}

func (w bookWire) book() Book {
	return Book{
		ID:               string(w.ID),
		Title:            w.Title,
		Author:           w.Author,
		Genre:            w.Genre,
		Rating:           Rating(w.Rating),
		Summary:          w.Summary,
		Description:      w.Description,
		CoverImageURL:    w.CoverImage,
		OwnerIdentity:    w.UserEmail,
		OwnerDisplayName: w.UserName,
		CreatedAt:        time.Time(w.CreatedAt),
	}
}

type commentWire struct {
	ID        wireID   `json:"_id"`
	BookID    wireID   `json:"bookId"`
	UserEmail string   `json:"userEmail"`
	UserName  string   `json:"userName"`
	UserPhoto string   `json:"userPhoto"`
	Text      string   `json:"text"`
	CreatedAt wireTime `json:"created_at"`
}

func (w commentWire) comment() Comment {
	return Comment{
		ID:                string(w.ID),
		BookID:            string(w.BookID),
		AuthorIdentity:    w.UserEmail,
		AuthorDisplayName: w.UserName,
		AuthorAvatarURL:   w.UserPhoto,
		Text:              w.Text,
		CreatedAt:         time.Time(w.CreatedAt),
	}
}

type bookPayload struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Genre       string  `json:"genre"`
	Rating      float64 `json:"rating"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	CoverImage  string  `json:"coverImage,omitempty"`
	UserEmail   string  `json:"userEmail,omitempty"`
	UserName    string  `json:"userName,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

func newBookPayload(in BookInput) bookPayload {
	return bookPayload{
		Title:       in.Title,
		Author:      in.Author,
		Genre:       in.Genre,
		Rating:      in.Rating,
		Summary:     in.Summary,
		Description: in.Description,
		CoverImage:  in.CoverImageURL,
		UserEmail:   in.OwnerIdentity,
		UserName:    in.OwnerDisplayName,
	}
}

type commentPayload struct {
	BookID    string `json:"bookId"`
	UserEmail string `json:"userEmail"`
	UserName  string `json:"userName"`
	UserPhoto string `json:"userPhoto,omitempty"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// insertResult, updateResult and deleteResult mirror the driver-style
// acknowledgements the server forwards.
type insertResult struct {
	InsertedID wireID `json:"insertedId"`
}

type updateResult struct {
	MatchedCount *int `json:"matchedCount"`
}

type deleteResult struct {
	DeletedCount *int `json:"deletedCount"`
}

// wireID accepts "abc" or {"$oid": "abc"}.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var obj struct {
		OID string `json:"$oid"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = wireID(obj.OID)
	return nil
}

// wireNumber accepts 4.5, "4.5", {"$numberDouble": "4.5"} and friends.
type wireNumber float64

func (n *wireNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*n = 0
		return nil
	}
	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode number: %w", err)
		}
		for _, k := range []string{"$numberDouble", "$numberDecimal", "$numberInt", "$numberLong"} {
			if raw, ok := obj[k]; ok {
				return n.UnmarshalJSON(raw)
			}
		}
		return fmt.Errorf("decode number: unsupported object %s", data)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("decode number %q: %w", s, err)
		}
		*n = wireNumber(f)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("decode number: %w", err)
		}
		*n = wireNumber(f)
		return nil
	}
}

// wireTime accepts RFC3339 text, the server's plain layout, or {"$date": ...}.
type wireTime time.Time

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*t = wireTime{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = wireTime(parseTime(s))
		return nil
	case '{':
		var obj struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decode time: %w", err)
		}
		if len(obj.Date) == 0 {
			*t = wireTime{}
			return nil
		}
		if obj.Date[0] == '"' {
			return t.UnmarshalJSON(obj.Date)
		}
		var millis wireNumber
		if err := millis.UnmarshalJSON(obj.Date); err != nil {
			return err
		}
		*t = wireTime(time.UnixMilli(int64(millis)).UTC())
		return nil
	default:
		var millis float64
		if err := json.Unmarshal(data, &millis); err != nil {
			return fmt.Errorf("decode time: %w", err)
		}
		*t = wireTime(time.UnixMilli(int64(millis)).UTC())
		return nil
	}
}

func isNull(data []byte) bool {
	return len(data) == 0 || bytes.Equal(data, []byte("null"))
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(serverTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
