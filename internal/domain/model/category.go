package model

import "strings"

// Category is the closed set of credential groupings.
type Category string

const (
	CategorySocial Category = "social"
	CategoryGames  Category = "games"
	CategoryBank   Category = "bank"
	CategoryEmail  Category = "email"
	CategoryWork   Category = "work"
	CategoryOther  Category = "other"
)

// CategoryAll is the list filter value that disables category filtering.
// It is never stored on a credential.
const CategoryAll = "all"

// CategoryInfo is the display metadata the Mini App shows next to a category.
type CategoryInfo struct {
	Category Category
	Label    string
	Icon     string // Font Awesome icon name.
}

var categoryInfo = []CategoryInfo{
	{Category: CategorySocial, Label: "Social", Icon: "users"},
	{Category: CategoryGames, Label: "Games", Icon: "gamepad"},
	{Category: CategoryBank, Label: "Banking", Icon: "university"},
	{Category: CategoryEmail, Label: "Email", Icon: "envelope"},
	{Category: CategoryWork, Label: "Work", Icon: "briefcase"},
	{Category: CategoryOther, Label: "Other", Icon: "key"},
}

// Categories returns the enumeration in display order.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categoryInfo))
	copy(out, categoryInfo)
	return out
}

// ParseCategory maps raw input onto the enumeration, case-insensitively.
// Empty or unrecognized values become CategoryOther.
func ParseCategory(raw string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

// Valid reports whether c is a member of the enumeration.
func (c Category) Valid() bool {
	switch c {
	case CategorySocial, CategoryGames, CategoryBank, CategoryEmail, CategoryWork, CategoryOther:
		return true
	}
	return false
}

// Info returns display metadata for c, falling back to CategoryOther.
func (c Category) Info() CategoryInfo {
	for _, info := range categoryInfo {
		if info.Category == c {
			return info
		}
	}
	return categoryInfo[len(categoryInfo)-1]
}
