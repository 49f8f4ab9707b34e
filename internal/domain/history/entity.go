package history

import "time"

// ItemID identifier type
type ItemID string

// Item is one saved analysis (row of analysis_history)
type Item struct {
	ID                     ItemID    `json:"id"`
	OwnerID                string    `json:"user_id"`
	CreatedAt              time.Time `json:"created_at"`
	Title                  string    `json:"title,omitempty"`
	Language               string    `json:"language"`
	Code                   string    `json:"code_snippet"`
	TimeComplexity         string    `json:"time_complexity"`
	SpaceComplexity        string    `json:"space_complexity"`
	Explanation            string    `json:"explanation"`
	ImprovementSuggestions string    `json:"improvement_suggestions,omitempty"`
	IsFavorite             bool      `json:"is_favorite"`
	UserNotes              string    `json:"user_notes,omitempty"`
}

// Clone returns a shallow copy; all fields are values.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	return &c
}

// NewItem is an item before the store assigns id and created_at
type NewItem struct {
	Title                  string
	Language               string
	Code                   string
	TimeComplexity         string
	SpaceComplexity        string
	Explanation            string
	ImprovementSuggestions string
}

// Patch holds the user-editable fields; nil means "leave as is".
// Editing code does not re-run the analysis.
type Patch struct {
	Title      *string `json:"title,omitempty" validate:"omitempty,max=100"`
	Language   *string `json:"language,omitempty" validate:"omitempty,min=1"`
	Code       *string `json:"code_snippet,omitempty" validate:"omitempty,min=10,max=5000"`
	IsFavorite *bool   `json:"is_favorite,omitempty"`
	UserNotes  *string `json:"user_notes,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Language == nil && p.Code == nil && p.IsFavorite == nil && p.UserNotes == nil
}

// Apply returns a copy of it with the patch applied.
func (p Patch) Apply(it *Item) *Item {
	out := it.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.Code != nil {
		out.Code = *p.Code
	}
	if p.IsFavorite != nil {
		out.IsFavorite = *p.IsFavorite
	}
	if p.UserNotes != nil {
		out.UserNotes = *p.UserNotes
	}
	return out
}

// Order of a history listing
type Order string

const (
	NewestFirst Order = "desc"
	OldestFirst Order = "asc"
)

// DefaultCapacity is the number of items a mounted history view keeps.
const DefaultCapacity = 50

// Language is an entry of the suggested language list
type Language struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Languages is the suggested set. Stored language tags are free-form.
var Languages = []Language{
	{Value: "python", Label: "Python"},
	{Value: "javascript", Label: "JavaScript"},
	{Value: "typescript", Label: "TypeScript"},
	{Value: "java", Label: "Java"},
	{Value: "csharp", Label: "C#"},
	{Value: "cpp", Label: "C++"},
	{Value: "go", Label: "Go"},
	{Value: "ruby", Label: "Ruby"},
	{Value: "php", Label: "PHP"},
	{Value: "swift", Label: "Swift"},
	{Value: "kotlin", Label: "Kotlin"},
	{Value: "rust", Label: "Rust"},
}

// LanguageLabel returns the display label for a tag, or the tag itself.
func LanguageLabel(tag string) string {
	for _, l := range Languages {
		if l.Value == tag {
			return l.Label
		}
	}
	return tag
}
