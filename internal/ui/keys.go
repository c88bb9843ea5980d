package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Back       key.Binding

	// Page switching
	ViewHome     key.Binding
	ViewAll      key.Binding
	ViewMine     key.Binding
	ViewAdd      key.Binding
	ViewActivity key.Binding
	SignIn       key.Binding
	Register     key.Binding
	SignOut      key.Binding

	// Navigation
	Up           key.Binding
	Down         key.Binding
	Top          key.Binding
	Bottom       key.Binding
	HalfPageUp   key.Binding
	HalfPageDown key.Binding
	Open         key.Binding

	// Lists and detail
	Sort          key.Binding
	Refresh       key.Binding
	Edit          key.Binding
	Delete        key.Binding
	Comment       key.Binding
	DeleteComment key.Binding

	// Forms
	NextField   key.Binding
	PrevField   key.Binding
	Submit      key.Binding
	CycleGenre  key.Binding
	ToggleOAuth key.Binding

	// Activity
	CycleLevel   key.Binding
	ToggleFollow key.Binding

	// Modals
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		// Global
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Back"),
		),

		// Page switching
		ViewHome: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Home"),
		),
		ViewAll: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "All books"),
		),
		ViewMine: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "My books"),
		),
		ViewAdd: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Add book"),
		),
		ViewActivity: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "Activity"),
		),
		SignIn: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "Sign in"),
		),
		Register: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Register or finish profile"),
		),
		SignOut: key.NewBinding(
			key.WithKeys("O"),
			key.WithHelp("O", "Sign out"),
		),

		// Navigation
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),
		HalfPageUp: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "Half page up"),
		),
		HalfPageDown: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("ctrl+d", "Half page down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Open"),
		),

		// Lists and detail
		Sort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Sort by rating"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "Edit book"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Delete book"),
		),
		Comment: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Write comment"),
		),
		DeleteComment: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Delete comment"),
		),

		// Forms
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "Next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "Previous field"),
		),
		Submit: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "Submit"),
		),
		CycleGenre: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("ctrl+g", "Next genre"),
		),
		ToggleOAuth: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "Social sign in"),
		),

		// Activity
		CycleLevel: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle level filter"),
		),
		ToggleFollow: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("Space", "Toggle follow mode"),
		),

		// Modals
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
			key.WithHelp("y", "Confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("n", "esc"),
			key.WithHelp("n/esc", "Cancel"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.ViewHome, k.ViewAll, k.ViewMine, k.ViewAdd, k.ViewActivity, k.Back},
		{k.Up, k.Down, k.Top, k.Bottom, k.Open},
		{k.Sort, k.Refresh, k.Edit, k.Delete, k.Comment, k.DeleteComment},
		{k.NextField, k.PrevField, k.Submit, k.CycleGenre, k.ToggleOAuth},
		{k.SignIn, k.Register, k.SignOut},
		{k.CycleLevel, k.ToggleFollow},
		{k.CycleTheme, k.Help, k.Quit},
	}
}
