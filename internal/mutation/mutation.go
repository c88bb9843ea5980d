package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/five82/shelf/internal/apperr"
	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/imagehost"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/session"
	"github.com/five82/shelf/internal/validation"
)

// Operation names a mutation.
type Operation int

const (
	CreateBook Operation = iota
	UpdateBook
	DeleteBook
	CreateComment
	DeleteComment
)

func (o Operation) String() string {
	switch o {
	case CreateBook:
		return "add book"
	case UpdateBook:
		return "update book"
	case DeleteBook:
		return "delete book"
	case CreateComment:
		return "add comment"
	case DeleteComment:
		return "delete comment"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// BookForm is what the add and update forms submit. Cover is the image
// file to upload; on update an empty Cover keeps the current one.
type BookForm struct {
	Title       string
	Author      string
	Genre       string
	Rating      float64
	Summary     string
	Description string
	Cover       imagehost.Image
}

// Request is the dispatch form of a mutation, used by Mutate.
type Request struct {
	Op Operation
	// Book is the target of UpdateBook and DeleteBook.
	Book catalog.Book
	Form BookForm
	// BookID and Text describe a new comment.
	BookID string
	Text   string
	// Comment is the target of DeleteComment.
	Comment catalog.Comment
}

// Result is reported to the Notifier once a mutation finishes.
type Result struct {
	Op  Operation
	ID  string // id of the created or affected resource
	Err error
}

// Notifier receives mutation outcomes for user-visible notifications.
type Notifier interface {
	Notify(Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Result)

// Notify calls f.
func (f NotifierFunc) Notify(r Result) { f(r) }

// Writer is the part of the catalogue API mutations write through.
type Writer interface {
	catalog.BookWriter
	CreateComment(ctx context.Context, in catalog.CommentInput) (string, error)
	DeleteComment(ctx context.Context, id string) error
}

// Sessions exposes the current user.
type Sessions interface {
	Current() session.Session
}

// Invalidator is the part of the query cache mutations touch.
type Invalidator interface {
	Invalidate(prefix query.Key) int
	Remove(key query.Key)
}

const defaultTimeout = 60 * time.Second

// Orchestrator runs mutations: validate, authorize, upload, write,
// invalidate, notify. Each step runs only if the previous one succeeded.
type Orchestrator struct {
	writer   Writer
	images   imagehost.Uploader
	sessions Sessions
	cache    Invalidator
	notifier Notifier
	validate *validation.Validator
	logger   *zap.Logger
	timeout  time.Duration
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets where results are reported.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithValidator shares a validator.
func WithValidator(v *validation.Validator) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.validate = v
		}
	}
}

// WithTimeout bounds a whole mutation, upload included.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New builds an Orchestrator.
func New(w Writer, images imagehost.Uploader, sessions Sessions, cache Invalidator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		writer:   w,
		images:   images,
		sessions: sessions,
		cache:    cache,
		notifier: NotifierFunc(func(Result) {}),
		logger:   zap.NewNop(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.validate == nil {
		o.validate = validation.New()
	}
	return o
}

// Mutate dispatches r to the matching operation.
func (o *Orchestrator) Mutate(ctx context.Context, r Request) (string, error) {
	switch r.Op {
	case CreateBook:
		return o.CreateBook(ctx, r.Form)
	case UpdateBook:
		return r.Book.ID, o.UpdateBook(ctx, r.Book, r.Form)
	case DeleteBook:
		return r.Book.ID, o.DeleteBook(ctx, r.Book)
	case CreateComment:
		return o.CreateComment(ctx, r.BookID, r.Text)
	case DeleteComment:
		return r.Comment.ID, o.DeleteComment(ctx, r.Comment)
	default:
		return "", fmt.Errorf("unknown operation %d", int(r.Op))
	}
}

// CreateBook uploads the cover, then stores the book as the signed-in
// user's. It returns the new book id.
func (o *Orchestrator) CreateBook(ctx context.Context, form BookForm) (string, error) {
	const op = CreateBook
	fields := newBookFields(form)
	if err := o.check(op, fields, form.Cover, true); err != nil {
		return "", err
	}
	s, err := o.signedIn(op)
	if err != nil {
		return "", o.finish(op, "", err)
	}

	return o.run(ctx, op, "", func(ctx context.Context) (string, error) {
		cover, err := o.upload(ctx, op, form.Cover)
		if err != nil {
			return "", err
		}
		in := fields.input(cover)
		in.OwnerIdentity, in.OwnerDisplayName = s.Identity, s.DisplayName
		id, err := o.writer.CreateBook(ctx, in)
		if err != nil {
			return "", err
		}
		o.invalidate(query.AllBooks(), query.LatestBooks(), query.MyBooks(s.Identity))
		return id, nil
	})
}

// UpdateBook changes book. Only its owner may. The cover is replaced only
// when form carries a new one.
func (o *Orchestrator) UpdateBook(ctx context.Context, book catalog.Book, form BookForm) error {
	const op = UpdateBook
	fields := newBookFields(form)
	if err := o.check(op, fields, form.Cover, false); err != nil {
		return err
	}
	if err := o.owner(op, book); err != nil {
		return o.finish(op, book.ID, err)
	}

	_, err := o.run(ctx, op, book.ID, func(ctx context.Context) (string, error) {
		var cover string
		if !form.Cover.Empty() {
			var err error
			if cover, err = o.upload(ctx, op, form.Cover); err != nil {
				return "", err
			}
		}
		if err := o.writer.UpdateBook(ctx, book.ID, fields.input(cover)); err != nil {
			return "", err
		}
		o.invalidate(query.Book(book.ID), query.AllBooks(), query.LatestBooks(),
			query.FeaturedBook(), query.MyBooks(book.OwnerIdentity))
		return book.ID, nil
	})
	return err
}

// DeleteBook removes book. Only its owner may. The book's cached detail
// and comments are dropped.
func (o *Orchestrator) DeleteBook(ctx context.Context, book catalog.Book) error {
	const op = DeleteBook
	if err := o.owner(op, book); err != nil {
		return o.finish(op, book.ID, err)
	}

	_, err := o.run(ctx, op, book.ID, func(ctx context.Context) (string, error) {
		if err := o.writer.DeleteBook(ctx, book.ID); err != nil {
			return "", err
		}
		o.cache.Remove(query.Book(book.ID))
		o.cache.Remove(query.Comments(book.ID))
		o.invalidate(query.AllBooks(), query.LatestBooks(), query.FeaturedBook(),
			query.MyBooks(book.OwnerIdentity))
		return book.ID, nil
	})
	return err
}

type commentFields struct {
	BookID string `form:"book" validate:"required"`
	Text   string `form:"comment" validate:"required,min=5,max=500"`
}

// CreateComment posts text on a book as the signed-in user and returns the
// comment id.
func (o *Orchestrator) CreateComment(ctx context.Context, bookID, text string) (string, error) {
	const op = CreateComment
	fields := commentFields{BookID: strings.TrimSpace(bookID), Text: strings.TrimSpace(text)}
	if err := o.validate.Check(op.String(), fields, nil); err != nil {
		return "", err
	}
	s, err := o.signedIn(op)
	if err != nil {
		return "", o.finish(op, "", err)
	}

	return o.run(ctx, op, "", func(ctx context.Context) (string, error) {
		id, err := o.writer.CreateComment(ctx, catalog.CommentInput{
			BookID:            fields.BookID,
			Text:              fields.Text,
			AuthorIdentity:    s.Identity,
			AuthorDisplayName: s.DisplayName,
			AuthorAvatarURL:   s.AvatarURL,
		})
		if err != nil {
			return "", err
		}
		o.invalidate(query.Comments(fields.BookID))
		return id, nil
	})
}

// DeleteComment removes c. Only its author may.
func (o *Orchestrator) DeleteComment(ctx context.Context, c catalog.Comment) error {
	const op = DeleteComment
	s, err := o.signedIn(op)
	if err != nil {
		return o.finish(op, c.ID, err)
	}
	if !guard.OwnsComment(s, c) {
		return o.finish(op, c.ID, apperr.Unauthorized(op.String(), "only the author can delete this comment"))
	}

	_, err = o.run(ctx, op, c.ID, func(ctx context.Context) (string, error) {
		if err := o.writer.DeleteComment(ctx, c.ID); err != nil {
			return "", err
		}
		o.invalidate(query.Comments(c.BookID))
		return c.ID, nil
	})
	return err
}

// run executes the network steps detached from the caller's cancellation,
// so leaving a page never aborts a mutation halfway.
func (o *Orchestrator) run(ctx context.Context, op Operation, id string, steps func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	start := time.Now()
	out, err := steps(ctx)
	if out == "" {
		out = id
	}
	if err == nil {
		o.logger.Info("mutation done",
			zap.String("op", op.String()),
			zap.String("id", out),
			zap.Duration("took", time.Since(start)),
		)
	}
	return out, o.finish(op, out, err)
}

func (o *Orchestrator) finish(op Operation, id string, err error) error {
	if err != nil {
		o.logger.Warn("mutation failed",
			zap.String("op", op.String()),
			zap.String("id", id),
			zap.String("kind", apperr.KindOf(err).String()),
			zap.Error(err),
		)
	}
	o.notifier.Notify(Result{Op: op, ID: id, Err: err})
	return err
}

func (o *Orchestrator) signedIn(op Operation) (session.Session, error) {
	s := o.sessions.Current()
	if !s.SignedIn() {
		return s, apperr.Unauthorized(op.String(), "sign in first")
	}
	return s, nil
}

func (o *Orchestrator) owner(op Operation, book catalog.Book) error {
	s, err := o.signedIn(op)
	if err != nil {
		return err
	}
	if !guard.OwnsBook(s, book) {
		return apperr.Unauthorized(op.String(), "only the owner can change this book")
	}
	return nil
}

// upload stores the image and returns its URL. Any failure, validation
// included, becomes an Upstream error that aborts the mutation.
func (o *Orchestrator) upload(ctx context.Context, op Operation, img imagehost.Image) (string, error) {
	u, err := o.images.Upload(ctx, img)
	if err != nil {
		msg := "image upload failed"
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Message != "" {
			msg += ": " + ae.Message
		}
		return "", &apperr.Error{Kind: apperr.KindUpstream, Op: op.String(), Message: msg, Err: err}
	}
	if strings.TrimSpace(u) == "" {
		return "", apperr.Upstream(op.String(), 0, "image host returned no URL")
	}
	return u, nil
}

func (o *Orchestrator) invalidate(keys ...query.Key) {
	for _, k := range keys {
		o.cache.Invalidate(k)
	}
}

func (o *Orchestrator) check(op Operation, fields bookFields, cover imagehost.Image, coverRequired bool) error {
	extra := map[string]string{}
	switch {
	case cover.Empty() && coverRequired:
		extra["cover"] = "cover is required"
	case !cover.Empty():
		if _, err := imagehost.Check(cover); err != nil {
			extra["cover"] = err.Error()
		}
	}
	return o.validate.Check(op.String(), fields, extra)
}

type bookFields struct {
	Title       string  `form:"title" validate:"required,min=2"`
	Author      string  `form:"author" validate:"required,min=2"`
	Genre       string  `form:"genre" validate:"required,genre"`
	Rating      float64 `form:"rating" validate:"gte=1,lte=5"`
	Summary     string  `form:"summary" validate:"required,min=20,max=200"`
	Description string  `form:"description" validate:"required,min=30,max=1000"`
}

func newBookFields(f BookForm) bookFields {
	return bookFields{
		Title:       strings.TrimSpace(f.Title),
		Author:      strings.TrimSpace(f.Author),
		Genre:       strings.TrimSpace(f.Genre),
		Rating:      f.Rating,
		Summary:     strings.TrimSpace(f.Summary),
		Description: strings.TrimSpace(f.Description),
	}
}

func (f bookFields) input(cover string) catalog.BookInput {
	return catalog.BookInput{
		Title:         f.Title,
		Author:        f.Author,
		Genre:         f.Genre,
		Rating:        f.Rating,
		Summary:       f.Summary,
		Description:   f.Description,
		CoverImageURL: cover,
	}
}
