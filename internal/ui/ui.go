package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/identity"
	"github.com/five82/shelf/internal/mutation"
	"github.com/five82/shelf/internal/prefs"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
	"github.com/five82/shelf/internal/session"
)

// Sessions is the part of the session provider the UI drives.
type Sessions interface {
	Current() session.Session
	Subscribe(fn func(session.Session)) (unsubscribe func())
	SignIn(ctx context.Context, email, password string) error
	SignInSocial(ctx context.Context, cred identity.Credential) error
	Register(ctx context.Context, email, password string, prof session.Profile) error
	UpdateProfile(ctx context.Context, patch session.Patch) error
	SignOut(ctx context.Context) error
}

// Mutator performs writes. Implemented by *mutation.Orchestrator.
type Mutator interface {
	CreateBook(ctx context.Context, form mutation.BookForm) (string, error)
	UpdateBook(ctx context.Context, book catalog.Book, form mutation.BookForm) error
	DeleteBook(ctx context.Context, book catalog.Book) error
	CreateComment(ctx context.Context, bookID, text string) (string, error)
	DeleteComment(ctx context.Context, c catalog.Comment) error
}

var (
	_ Sessions = (*session.Provider)(nil)
	_ Mutator  = (*mutation.Orchestrator)(nil)
)

// Options configures the UI.
type Options struct {
	Context   context.Context
	Session   Sessions
	Cache     *query.Cache
	Loader    query.Loader
	Mutations Mutator
	Inbox     *Inbox
	Logger    *zap.Logger
	LogPath   string
	ThemeName string
	BookSort  string
	PrefsPath string
	StartPath string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Collaborators
	ctx       context.Context
	sessions  Sessions
	cache     *query.Cache
	loader    query.Loader
	mutations Mutator
	inbox     *Inbox
	logger    *zap.Logger
	logPath   string
	prefsPath string
	keys      keyMap

	// UI state
	theme    Theme
	width    int
	height   int
	ready    bool
	spinner  spinner.Model
	showHelp bool
	modal    Modal
	notices  []notice

	// Navigation
	user    session.Session
	route   route.Route
	access  guard.Decision
	history []string

	// Query state
	entries   map[string]query.Entry
	observers map[string]func()

	// Page state
	cursor   int
	sort     catalog.SortOrder
	detail   detailState
	bookForm bookForm
	auth     authState
	activity activityState
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = themeOrder[0]
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inbox := opts.Inbox
	if inbox == nil {
		inbox = NewInbox(64)
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		ctx:       ctx,
		sessions:  opts.Session,
		cache:     opts.Cache,
		loader:    opts.Loader,
		mutations: opts.Mutations,
		inbox:     inbox,
		logger:    logger,
		logPath:   opts.LogPath,
		prefsPath: prefsPath,
		keys:      DefaultKeyMap(),
		theme:     GetTheme(themeName),
		spinner:   sp,
		entries:   make(map[string]query.Entry),
		observers: make(map[string]func()),
		sort:      parseSort(opts.BookSort),
		activity:  newActivityState(),
	}
	if m.sessions != nil {
		m.user = m.sessions.Current()
	}

	start := opts.StartPath
	if start == "" {
		start = "/"
	}
	if err := m.open(start, false); err != nil {
		_ = m.open("/", false)
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.inbox.Wait(),
		m.spinner.Tick,
		tickCmd(),
	}
	if cmd := m.pageCmd(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case inboxMsg:
		next, cmd := m.Update(msg.msg)
		return next, tea.Batch(cmd, m.inbox.Wait())

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeActivity()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m.handleTick(time.Time(msg))

	case entryMsg:
		m.handleEntry(query.Entry(msg))
		return m, nil

	case sessionMsg:
		cmd := m.handleSession(session.Session(msg))
		return m, cmd

	case resultMsg:
		m.handleResult(mutation.Result(msg))
		return m, nil

	case mutationDoneMsg:
		cmd := m.handleMutationDone(msg)
		return m, cmd

	case authDoneMsg:
		cmd := m.handleAuthDone(msg)
		return m, cmd

	case activityMsg:
		m.handleActivity(msg)
		return m, nil

	case confirmDeleteMsg:
		return m, m.deleteBook(msg.book)

	case confirmDeleteCommentMsg:
		return m, m.deleteComment(msg.comment)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}

	return m.renderMain()
}

// handleTick expires notices and follows the activity log.
func (m Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	m.expireNotices(now)
	cmds := []tea.Cmd{tickCmd()}
	if m.route.Page == route.Activity && m.activity.follow {
		cmds = append(cmds, m.loadActivity())
	}
	return m, tea.Batch(cmds...)
}

// Messages

type tickMsg time.Time

type inboxMsg struct{ msg tea.Msg }

type entryMsg query.Entry

type sessionMsg session.Session

type resultMsg mutation.Result

type mutationDoneMsg struct {
	op  mutation.Operation
	id  string
	err error
}

type authDoneMsg struct {
	action authAction
	err    error
}

type confirmDeleteMsg struct{ book catalog.Book }

type confirmDeleteCommentMsg struct{ comment catalog.Comment }

// Commands

func tickCmd() tea.Cmd {
	return tea.Tick(DefaultUIInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	if opts.Inbox == nil {
		opts.Inbox = NewInbox(64)
	}
	var unsubscribe func()
	if opts.Session != nil {
		unsubscribe = opts.Session.Subscribe(opts.Inbox.Session)
	}

	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	final, err := p.Run()

	if unsubscribe != nil {
		unsubscribe()
	}
	if fm, ok := final.(Model); ok {
		fm.stopObservers()
	}
	opts.Inbox.Close()
	return err
}
