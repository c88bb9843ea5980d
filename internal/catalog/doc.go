// Package catalog provides the HTTP client for the book-catalogue API.
//
// # Overview
//
// Every request shelf makes to the catalogue server goes through one
// configured *Client bound to the server base URL. The package owns the
// wire format: the server stores documents in a document database and
// forwards some fields in extended-JSON form, so ids may arrive as
// {"$oid": "..."} and ratings as {"$numberDouble": "4.5"}. Those shapes are
// decoded into plain Go values here and nowhere else.
//
// # Files
//
//   - client.go: the Client, endpoint methods and status classification
//   - types.go: Book, Comment, their inputs and the private wire mirrors
//   - sort.go: rating sort order and the toggle cycle used by book lists
//
// # Client Usage
//
//	client, err := catalog.NewClient(cfg.ServerURL,
//		catalog.WithTimeout(cfg.RequestTimeout),
//		catalog.WithLogger(logger),
//	)
//	if err != nil {
//		return fmt.Errorf("init catalog client: %w", err)
//	}
//	books, err := client.ListBooks(ctx)
//
// # Endpoints
//
//   - GET /books, /latest-books, /featured-book, /book/:id, /my-books?email=
//   - POST /add-book, PATCH /update-book/:id, DELETE /book/:id
//   - GET /comments/:bookId, POST /comments, DELETE /comments/:commentId
//
// # Error Handling
//
// Every method returns an *apperr.Error at the boundary:
//
//   - transport failures and timeouts: KindNetwork
//   - 404, a null body, or a zero matched/deleted count: KindNotFound
//   - 401 and 403: KindAuthorization
//   - any other status >= 400 or an undecodable body: KindUpstream, with the
//     server's {"message": ...} text when it sent one
//
// Requests carry Accept, User-Agent and a fresh X-Request-ID; writes carry a
// bearer token when a TokenSource is configured.
package catalog
