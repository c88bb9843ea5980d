package ui

import (
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/catalog"
	"github.com/five82/shelf/internal/guard"
	"github.com/five82/shelf/internal/query"
	"github.com/five82/shelf/internal/route"
)

// renderStars draws a rating as filled and empty stars plus its label.
func renderStars(r catalog.Rating) string {
	filled, empty := r.Stars()
	return strings.Repeat("★", filled) + strings.Repeat("☆", empty) + " " + r.Label()
}

type genreCount struct {
	genre string
	count int
}

// topGenres counts books per genre, most common first, ties by name.
func topGenres(books []catalog.Book, n int) []genreCount {
	counts := map[string]int{}
	for _, b := range books {
		if b.Genre == "" {
			continue
		}
		counts[b.Genre]++
	}
	out := make([]genreCount, 0, len(counts))
	for g, c := range counts {
		out = append(out, genreCount{genre: g, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].genre < out[j].genre
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (m Model) renderHome() string {
	styles := m.theme.Styles()

	var featured strings.Builder
	featured.WriteString(styles.StatusStyle("featured").Render("featured"))
	featured.WriteString("\n")
	fe := m.entry(query.FeaturedBook())
	if s, ok := m.renderState(fe, "Nothing featured yet"); ok {
		featured.WriteString(s)
	} else if b, ok := query.Value[catalog.Book](fe); ok {
		featured.WriteString(styles.Text.Bold(true).Render(b.Title))
		featured.WriteString("\n")
		featured.WriteString(styles.MutedText.Render("by " + b.Author))
		featured.WriteString("\n")
		featured.WriteString(styles.WarningText.Render(renderStars(b.Rating)))
		featured.WriteString("\n\n")
		featured.WriteString(styles.Text.Render(b.Summary))
	}

	var latest strings.Builder
	latest.WriteString(styles.AccentText.Render("Latest"))
	if badge := m.freshness(m.entry(query.LatestBooks())); badge != "" {
		latest.WriteString(" " + badge)
	}
	latest.WriteString("\n")
	le := m.entry(query.LatestBooks())
	if s, ok := m.renderState(le, "No books yet. Press 4 to add one."); ok {
		latest.WriteString(s)
	} else {
		latest.WriteString(m.renderRows(m.books()))
	}

	var genres strings.Builder
	genres.WriteString(styles.AccentText.Render("Top genres"))
	genres.WriteString("\n")
	all, _ := query.Value[[]catalog.Book](m.entry(query.AllBooks()))
	top := topGenres(all, 5)
	if len(top) == 0 {
		genres.WriteString(styles.FaintText.Render("none yet"))
	}
	for _, g := range top {
		genres.WriteString(styles.Text.Render(padRight(g.genre, 20)))
		genres.WriteString(styles.MutedText.Render(strings.Repeat("▪", g.count)))
		genres.WriteString("\n")
	}

	if m.width >= LayoutWideWidth {
		side := lipgloss.NewStyle().Width(m.width/3).PaddingRight(2)
		left := lipgloss.JoinVertical(lipgloss.Left, side.Render(featured.String()), "", side.Render(genres.String()))
		return lipgloss.JoinHorizontal(lipgloss.Top, left, latest.String())
	}
	return featured.String() + "\n\n" + latest.String() + "\n\n" + genres.String()
}

func (m Model) renderList() string {
	styles := m.theme.Styles()
	k := query.AllBooks()
	empty := "No books in the catalogue yet"
	if m.route.Page == route.MyBooks {
		k = query.MyBooks(m.user.Identity)
		empty = "You have not added any books. Press 4 to add one."
	}
	e := m.entry(k)

	var b strings.Builder
	b.WriteString(styles.MutedText.Render("sort: " + m.sort.String()))
	if badge := m.freshness(e); badge != "" {
		b.WriteString(" " + badge)
	}
	b.WriteString("\n\n")
	if s, ok := m.renderState(e, empty); ok {
		b.WriteString(s)
		return b.String()
	}
	b.WriteString(m.renderRows(m.books()))
	return b.String()
}

// renderRows draws one line per book with the cursor row highlighted.
func (m Model) renderRows(books []catalog.Book) string {
	styles := m.theme.Styles()
	compact := m.width < LayoutCompactWidth
	titleWidth := maxInt(m.width/3, 20)

	var b strings.Builder
	for i, book := range books {
		cols := []string{padRight(truncate(book.Title, titleWidth), titleWidth)}
		if !compact {
			cols = append(cols,
				padRight(truncate(book.Author, 24), 24),
				padRight(truncate(book.Genre, 18), 18),
			)
		}
		cols = append(cols, renderStars(book.Rating))
		if guard.OwnsBook(m.user, book) && m.route.Page != route.MyBooks {
			cols = append(cols, "(yours)")
		}
		line := strings.Join(cols, "  ")
		if i == m.cursor {
			b.WriteString(styles.Selected.Render("› " + line))
		} else {
			b.WriteString(styles.Text.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderDetail() string {
	styles := m.theme.Styles()
	e := m.entry(query.Book(m.route.ID))
	if s, ok := m.renderState(e, "This book does not exist"); ok {
		return s
	}
	book, _ := query.Value[catalog.Book](e)
	wrap := lipgloss.NewStyle().Width(maxInt(m.width-4, 20))

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render(book.Title))
	if badge := m.freshness(e); badge != "" {
		b.WriteString(" " + badge)
	}
	b.WriteString("\n")
	b.WriteString(styles.MutedText.Render("by " + book.Author + "  ·  " + book.Genre))
	b.WriteString("\n")
	b.WriteString(styles.WarningText.Render(renderStars(book.Rating)))
	b.WriteString("\n")
	owner := book.OwnerDisplayName
	if owner == "" {
		owner = book.OwnerIdentity
	}
	if guard.OwnsBook(m.user, book) {
		owner = "you"
	}
	b.WriteString(styles.FaintText.Render("added by " + owner))
	if !book.CreatedAt.IsZero() {
		b.WriteString(styles.FaintText.Render(" on " + book.CreatedAt.Local().Format("2 Jan 2006")))
	}
	b.WriteString("\n")
	if book.CoverImageURL != "" {
		b.WriteString(styles.FaintText.Render("cover " + truncateMiddle(book.CoverImageURL, maxInt(m.width-12, 20))))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if book.Summary != "" {
		b.WriteString(wrap.Render(styles.Text.Italic(true).Render(book.Summary)))
		b.WriteString("\n\n")
	}
	if book.Description != "" {
		b.WriteString(wrap.Render(styles.Text.Render(book.Description)))
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderComments())
	return b.String()
}

func (m Model) renderComments() string {
	styles := m.theme.Styles()
	e := m.entry(query.Comments(m.route.ID))

	var b strings.Builder
	b.WriteString(styles.AccentText.Render("Comments"))
	if list := m.comments(); len(list) > 0 {
		b.WriteString(styles.MutedText.Render(" (" + strconv.Itoa(len(list)) + ")"))
	}
	b.WriteString("\n")

	if m.detail.composing {
		b.WriteString(m.detail.compose.View())
		b.WriteString("\n")
		if m.detail.err != "" {
			b.WriteString(styles.DangerText.Render(m.detail.err))
			b.WriteString("\n")
		}
		if m.detail.submitting {
			b.WriteString(styles.MutedText.Render(m.spinner.View() + " Posting..."))
			b.WriteString("\n")
		}
	}

	if s, ok := m.renderState(e, "No comments yet. Press c to write one."); ok {
		b.WriteString(s)
		return b.String()
	}
	for i, c := range m.comments() {
		author := c.AuthorDisplayName
		if author == "" {
			author = c.AuthorIdentity
		}
		head := author
		if !c.CreatedAt.IsZero() {
			head += "  " + c.CreatedAt.Local().Format("2 Jan 2006 15:04")
		}
		if guard.OwnsComment(m.user, c) {
			head += "  " + styles.StatusStyle("owner").Render("you")
		}
		marker := "  "
		if i == m.cursor && !m.detail.composing {
			marker = "› "
		}
		b.WriteString(styles.MutedText.Render(marker + head))
		b.WriteString("\n")
		b.WriteString(styles.Text.Render("  " + c.Text))
		b.WriteString("\n")
	}
	return b.String()
}
