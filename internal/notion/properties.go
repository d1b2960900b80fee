package notion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jomei/notionapi"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

// Database column names.
const (
	PropTitle      = "Title"
	PropURL        = "URL"
	PropSummary    = "Summary"
	PropAuthors    = "Authors"
	PropPublished  = "Published"
	PropFocus      = "Focus"
	PropAttackType = "Attack Type"
)

// RequiredProperties maps each column the sink writes to its Notion type.
var RequiredProperties = map[string]notionapi.PropertyConfigType{
	PropTitle:      notionapi.PropertyConfigTypeTitle,
	PropURL:        notionapi.PropertyConfigTypeURL,
	PropSummary:    notionapi.PropertyConfigTypeRichText,
	PropAuthors:    notionapi.PropertyConfigTypeMultiSelect,
	PropPublished:  notionapi.PropertyConfigTypeDate,
	PropFocus:      notionapi.PropertyConfigTypeSelect,
	PropAttackType: notionapi.PropertyConfigTypeSelect,
}

// MaxAuthors is the number of authors written as multi-select options.
const MaxAuthors = 5

// maxRichText is Notion's per-item text content limit.
const maxRichText = 2000

func richText(s string) []notionapi.RichText {
	r := []rune(s)
	if len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// PageProperties maps a paper onto the database schema. Enrichment columns
// are omitted when the paper has not been enriched.
func PageProperties(p paper.Paper) notionapi.Properties {
	props := notionapi.Properties{
		PropTitle: &notionapi.TitleProperty{Title: richText(p.Title)},
		PropURL:   &notionapi.URLProperty{URL: p.Link},
	}

	if authors := authorOptions(p.Authors); len(authors) > 0 {
		props[PropAuthors] = &notionapi.MultiSelectProperty{MultiSelect: authors}
	}
	if !p.Published.IsZero() {
		start := notionapi.Date(p.Published.UTC())
		props[PropPublished] = &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}
	}

	if e := p.Enrichment; e != nil {
		props[PropSummary] = &notionapi.RichTextProperty{RichText: richText(e.Summary)}
		props[PropFocus] = &notionapi.SelectProperty{Select: notionapi.Option{Name: string(e.Focus)}}
		props[PropAttackType] = &notionapi.SelectProperty{Select: notionapi.Option{Name: string(e.AttackType)}}
	}
	return props
}

// Notion rejects commas in select option names.
func authorOptions(authors []string) []notionapi.Option {
	var out []notionapi.Option
	for _, a := range authors {
		if len(out) == MaxAuthors {
			break
		}
		name := strings.TrimSpace(strings.ReplaceAll(a, ",", ""))
		if name == "" {
			continue
		}
		out = append(out, notionapi.Option{Name: name})
	}
	return out
}

var hexIDRegex = regexp.MustCompile(`[0-9a-fA-F]{32}|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// FormatID normalizes a database ID to dashed UUID form. It accepts a bare
// 32-character hex ID, a dashed ID, or a Notion URL containing either.
func FormatID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("notion ID is empty")
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	matches := hexIDRegex.FindAllString(s, -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("invalid notion ID %q", s)
	}
	// URLs put the ID at the end of the slug.
	id, err := uuid.Parse(matches[len(matches)-1])
	if err != nil {
		return "", fmt.Errorf("invalid notion ID %q: %w", s, err)
	}
	return id.String(), nil
}
