package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
)

// navTabs are the pages reachable from the header, in key order.
var navTabs = []struct {
	key  string
	page route.Page
}{
	{"1", route.Home},
	{"2", route.AllBooks},
	{"3", route.MyBooks},
	{"4", route.AddBook},
	{"5", route.Activity},
}

// renderMain lays out header, page body, notices and command bar.
func (m Model) renderMain() string {
	styles := m.theme.Styles()
	bodyHeight := maxInt(m.height-chromeHeight, 1)

	body := m.renderBody()
	body = lipgloss.NewStyle().
		Width(m.width).
		Height(bodyHeight).
		MaxHeight(bodyHeight).
		Padding(0, 1).
		Render(body)

	rule := styles.FaintText.Render(strings.Repeat("─", maxInt(m.width, 0)))

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		rule,
		body,
		m.renderNotice(),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	bg := NewBgStyle(m.theme.SurfaceAlt)
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)

	parts := []string{bg.Render("shelf", styles.Logo)}
	for _, tab := range navTabs {
		label := tab.key + " " + tab.page.String()
		if tab.page == m.route.Page {
			parts = append(parts, bg.Render(label, styles.AccentText.Bold(true)))
		} else {
			parts = append(parts, bg.Render(label, styles.MutedText))
		}
	}
	left := bg.Join(parts, "  ")

	var right []string
	if m.offline() {
		right = append(right, styles.StatusStyle("offline").Render("offline"))
	}
	switch {
	case m.user.Loading:
		right = append(right, bg.Render(m.spinner.View()+" checking", styles.MutedText))
	case m.user.SignedIn():
		name := m.user.DisplayName
		if name == "" {
			name = m.user.Identity
		}
		if m.user.ProfilePending {
			name += " (profile pending)"
		}
		right = append(right, bg.Render(truncate(name, 40), styles.Text))
	default:
		right = append(right, bg.Render("signed out", styles.FaintText))
	}
	rightStr := bg.Join(right, " ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(rightStr) - 2
	if gap < 1 {
		return bg.FillLine(bg.Space()+left, m.width)
	}
	return bg.FillLine(bg.Space()+left+bg.Spaces(gap)+rightStr+bg.Space(), m.width)
}

// offline reports whether any entry on screen has failed repeatedly.
func (m Model) offline() bool {
	for _, k := range m.pageKeys() {
		if m.entry(k).IsOffline() {
			return true
		}
	}
	return false
}

func (m Model) renderBody() string {
	styles := m.theme.Styles()
	title := styles.Text.Bold(true).Render(m.route.Page.String())

	if m.access.Access == guard.Checking {
		return title + "\n\n" + styles.MutedText.Render(m.spinner.View()+" Checking your session...")
	}

	var body string
	switch m.route.Page {
	case route.Home:
		body = m.renderHome()
	case route.AllBooks, route.MyBooks:
		body = m.renderList()
	case route.BookDetail:
		body = m.renderDetail()
	case route.AddBook, route.UpdateBook:
		body = m.renderBookForm()
	case route.Login, route.Register:
		body = m.renderAuth()
	case route.Activity:
		return m.renderActivity()
	}
	return title + "\n\n" + body
}

// renderState renders the non-ready views of e. ok is false when the
// entry has data to show.
func (m Model) renderState(e query.Entry, empty string) (string, bool) {
	styles := m.theme.Styles()
	switch e.View() {
	case query.ViewLoading:
		return styles.MutedText.Render(m.spinner.View() + " Loading..."), true
	case query.ViewError:
		msg := "Could not load"
		if e.Err != nil {
			msg = errorText(e.Err)
		}
		return styles.DangerText.Render(msg) + "\n" + styles.FaintText.Render("r to retry"), true
	case query.ViewEmpty:
		return styles.MutedText.Render(empty), true
	}
	return "", false
}

// freshness is the small badge beside a ready list.
func (m Model) freshness(e query.Entry) string {
	styles := m.theme.Styles()
	switch {
	case e.Fetching:
		return styles.StatusStyle("refreshing").Render("refreshing")
	case e.Status == query.StatusError:
		return styles.StatusStyle("error").Render("update failed")
	case e.Stale:
		return styles.StatusStyle("stale").Render("stale")
	}
	return ""
}

func (m Model) renderNotice() string {
	if len(m.notices) == 0 {
		return ""
	}
	styles := m.theme.Styles()
	n := m.notices[len(m.notices)-1]
	text := truncate(n.text, maxInt(m.width-2, 10))
	switch n.kind {
	case noticeError:
		return " " + styles.DangerText.Render(text)
	case noticeSuccess:
		return " " + styles.SuccessText.Render(text)
	default:
		return " " + styles.InfoText.Render(text)
	}
}

// renderFooter shows the keys that matter on this page.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var hints [][2]string
	switch {
	case m.inForm() && m.route.Page == route.BookDetail:
		hints = [][2]string{{"enter", "post"}, {"esc", "cancel"}}
	case m.inForm():
		hints = [][2]string{{"tab", "next"}, {"ctrl+s", "submit"}, {"esc", "back"}}
		if m.route.Page == route.AddBook || m.route.Page == route.UpdateBook {
			hints = append(hints, [2]string{"ctrl+g", "genre"})
		}
		if m.route.Page == route.Login {
			hints = append(hints, [2]string{"ctrl+o", ternary(m.auth.mode == authSocial, "password", "social")})
		}
	default:
		switch m.route.Page {
		case route.Home:
			hints = [][2]string{{"enter", "open"}, {"r", "refresh"}}
		case route.AllBooks, route.MyBooks:
			hints = [][2]string{{"enter", "open"}, {"s", "sort"}, {"r", "refresh"}}
			if m.route.Page == route.MyBooks {
				hints = append(hints, [2]string{"e", "edit"}, [2]string{"d", "delete"})
			}
		case route.BookDetail:
			hints = [][2]string{{"c", "comment"}, {"x", "delete comment"}, {"e", "edit"}, {"d", "delete"}}
		case route.Activity:
			hints = [][2]string{{"f", "level"}, {"space", "follow"}}
		}
		if m.user.ProfilePending {
			hints = append(hints, [2]string{"R", "finish profile"})
		}
		if m.user.SignedIn() {
			hints = append(hints, [2]string{"O", "sign out"})
		} else {
			hints = append(hints, [2]string{"L", "sign in"}, [2]string{"R", "register"})
		}
		hints = append(hints, [2]string{"?", "help"}, [2]string{"q", "quit"})
	}

	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, styles.WarningText.Render(h[0])+" "+styles.MutedText.Render(h[1]))
	}
	line := " " + strings.Join(parts, "  ")
	return lipgloss.NewStyle().MaxWidth(maxInt(m.width, 1)).Render(line)
}

func (m Model) renderFormFields(f form) string {
	styles := m.theme.Styles()
	labelWidth := 14
	inputWidth := maxInt(m.width-labelWidth-8, 20)

	var b strings.Builder
	for i, fl := range f.fields {
		label := fl.label
		if i == f.focus {
			b.WriteString(styles.AccentText.Render(padRight("› "+label, labelWidth)))
		} else {
			b.WriteString(styles.MutedText.Render(padRight("  "+label, labelWidth)))
		}
		in := fl.input
		in.Width = inputWidth
		b.WriteString(in.View())
		b.WriteString("\n")
		if msg, ok := f.errors[fl.name]; ok {
			b.WriteString(strings.Repeat(" ", labelWidth))
			b.WriteString(styles.DangerText.Render(msg))
			b.WriteString("\n")
		}
	}
	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.DangerText.Render(f.err))
		b.WriteString("\n")
	}
	if f.submitting {
		b.WriteString("\n")
		b.WriteString(styles.MutedText.Render(m.spinner.View() + " Saving..."))
	}
	return b.String()
}

func (m Model) renderBookForm() string {
	styles := m.theme.Styles()
	if m.bookForm.update && !m.bookForm.prefilled {
		e := m.entry(query.Book(m.route.ID))
		if s, ok := m.renderState(e, "This book no longer exists"); ok {
			return s
		}
	}
	var b strings.Builder
	if m.bookForm.update && m.bookForm.book.CoverImageURL != "" {
		b.WriteString(styles.FaintText.Render("Current cover: " + truncateMiddle(m.bookForm.book.CoverImageURL, maxInt(m.width-20, 20))))
		b.WriteString("\n\n")
	}
	b.WriteString(m.renderFormFields(m.bookForm.form))
	return b.String()
}

func (m Model) renderAuth() string {
	styles := m.theme.Styles()
	var b strings.Builder
	switch m.auth.mode {
	case authSocial:
		b.WriteString(styles.MutedText.Render("Sign in with a provider token."))
	case authRegister:
		b.WriteString(styles.MutedText.Render("Create an account. A profile photo is required."))
	case authProfile:
		b.WriteString(styles.MutedText.Render("Update your display name and photo."))
	default:
		b.WriteString(styles.MutedText.Render("Sign in with your email and password."))
	}
	b.WriteString("\n\n")
	b.WriteString(m.renderFormFields(m.auth.form))
	if from := m.route.Query.Get("from"); from != "" {
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render(fmt.Sprintf("You will return to %s", from)))
	}
	return b.String()
}
