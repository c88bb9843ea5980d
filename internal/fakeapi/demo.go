package fakeapi

import (
	"time"

	"github.com/google/uuid"
)

var demoBooks = []bookDoc{
	{
		Title:       "The Left Hand of Darkness",
		Author:      "Ursula K. Le Guin",
		Genre:       "Science Fiction",
		Rating:      4.6,
		Summary:     "An envoy visits a planet whose people have no fixed sex.",
		Description: "Genly Ai is sent to Gethen to invite its nations into an interstellar union, and learns what trust costs in a land of endless winter.",
		UserEmail:   "demo@shelf.local",
		UserName:    "Demo Reader",
	},
	{
		Title:       "The Name of the Rose",
		Author:      "Umberto Eco",
		Genre:       "Mystery",
		Rating:      4.1,
		Summary:     "A friar investigates deaths in a wealthy medieval abbey.",
		Description: "William of Baskerville and his novice Adso unravel a series of murders tied to a labyrinthine library and a forbidden book.",
		UserEmail:   "demo@shelf.local",
		UserName:    "Demo Reader",
	},
	{
		Title:       "Piranesi",
		Author:      "Susanna Clarke",
		Genre:       "Fantasy",
		Rating:      4.0,
		Summary:     "A man lives alone in an infinite house of statues and tides.",
		Description: "Piranesi keeps careful journals of the House and its halls until the Other's visits start to contradict everything he remembers.",
		UserEmail:   "guest@shelf.local",
		UserName:    "Guest",
	},
}

// seed loads the demo catalogue. Called from New before serving.
func (s *Server) seed() {
	start := s.now().Add(-time.Duration(len(demoBooks)) * time.Hour)
	for i, b := range demoBooks {
		b.ID = uuid.NewString()
		b.CreatedAt = start.Add(time.Duration(i) * time.Hour).UTC().Format(createdLayout)
		s.books = append(s.books, b)
		s.comments = append(s.comments, commentDoc{
			ID:        uuid.NewString(),
			BookID:    b.ID,
			UserEmail: "guest@shelf.local",
			UserName:  "Guest",
			Text:      "Read it twice, liked it more the second time.",
			CreatedAt: b.CreatedAt,
		})
	}
}
