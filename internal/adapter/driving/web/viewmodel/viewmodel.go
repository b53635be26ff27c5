// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// ShellViewModel holds the data for the Mini App shell page.
type ShellViewModel struct {
	Title               string
	State               string // uninitialized, locked or unlocked
	CanLock             bool
	CSRFToken           string
	RevealWindowSeconds int
	Categories          []CategoryViewModel
}

// CategoryViewModel is one filter chip.
type CategoryViewModel struct {
	ID    string
	Label string
	Icon  string
}

// NotesViewModel holds a credential's notes rendered as sanitized HTML.
type NotesViewModel struct {
	ID       string
	Service  string
	HTML     string // sanitized by bluemonday; safe to emit unescaped
	HasNotes bool
}
