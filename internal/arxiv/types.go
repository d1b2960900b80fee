package arxiv

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// DefaultQuery is the AI-security query used by --use-default-query.
const DefaultQuery = `"adversarial attacks" OR "language model attacks" OR "LLM vulnerabilities" OR ` +
	`"AI security" OR "machine learning security" OR "jailbreak" OR "bypassing AI" OR ` +
	`"prompt injection" OR "model extraction" OR "model inversion" OR "model poisoning"`

// Sort selects the backend ordering of results.
type Sort string

const (
	SortDate        Sort = "date"
	SortRelevance   Sort = "relevance"
	SortLastUpdated Sort = "lastUpdatedDate"
)

// ParseSort accepts the CLI spellings of a sort criterion.
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "date", "submitted", "submitteddate":
		return SortDate, nil
	case "relevance":
		return SortRelevance, nil
	case "lastupdateddate", "last-updated", "updated":
		return SortLastUpdated, nil
	default:
		return "", fmt.Errorf("invalid sort %q (use date, relevance, or lastUpdatedDate)", s)
	}
}

// apiValue returns the sortBy parameter understood by the arXiv API.
func (s Sort) apiValue() string {
	switch s {
	case SortRelevance:
		return "relevance"
	case SortLastUpdated:
		return "lastUpdatedDate"
	default:
		return "submittedDate"
	}
}

// feed is the Atom response from the arXiv query API.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	ItemsPerPage int      `xml:"itemsPerPage"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID         string     `xml:"id"` // "http://arxiv.org/abs/2301.12345v1"
	Title      string     `xml:"title"`
	Summary    string     `xml:"summary"`
	Published  string     `xml:"published"`
	Updated    string     `xml:"updated"`
	Authors    []author   `xml:"author"`
	Categories []category `xml:"category"`
}

type author struct {
	Name string `xml:"name"`
}

type category struct {
	Term string `xml:"term,attr"`
}
