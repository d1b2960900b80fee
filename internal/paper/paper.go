// Package paper defines the in-memory record for a retrieved arXiv paper
// and its optional AI enrichment.
package paper

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrIncompleteEnrichment is returned when an enrichment triple is missing a field.
var ErrIncompleteEnrichment = errors.New("enrichment requires summary, focus and attack type")

// Paper represents one arXiv paper with parsed fields.
type Paper struct {
	Title      string      `json:"title" yaml:"title" validate:"required"`
	Authors    []string    `json:"authors" yaml:"authors"`
	Abstract   string      `json:"abstract" yaml:"abstract"`
	Link       string      `json:"link" yaml:"link" validate:"required,url"`
	Published  time.Time   `json:"published" yaml:"published"`
	Updated    time.Time   `json:"updated,omitempty" yaml:"updated,omitempty"`
	Categories []string    `json:"categories,omitempty" yaml:"categories,omitempty"`
	Enrichment *Enrichment `json:"enrichment,omitempty" yaml:"enrichment,omitempty"`
}

// Enrichment is the AI-generated summary and classification for a paper.
type Enrichment struct {
	Summary    string     `json:"summary" yaml:"summary"`
	Focus      Focus      `json:"focus" yaml:"focus"`
	AttackType AttackType `json:"attack_type" yaml:"attack_type"`
}

// Complete reports whether all three enrichment fields are set.
func (e Enrichment) Complete() bool {
	return strings.TrimSpace(e.Summary) != "" && e.Focus != "" && e.AttackType != ""
}

// Enrich attaches e to the paper. Partial triples are rejected and leave
// the paper unchanged.
func (p *Paper) Enrich(e Enrichment) error {
	if !e.Complete() {
		return ErrIncompleteEnrichment
	}
	p.Enrichment = &e
	return nil
}

// Enriched reports whether the paper carries an enrichment triple.
func (p Paper) Enriched() bool {
	return p.Enrichment != nil
}

// Matches "2301.12345" and "hep-th/9901001" style identifiers, without version.
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/(?:abs|pdf)/([a-z\-]+(?:\.[A-Z]{2})?/\d{7}|\d{4}\.\d{4,5})(?:v\d+)?`)

// ID returns the arXiv identifier parsed from the link, or the link itself.
func (p Paper) ID() string {
	if m := arxivIDRegex.FindStringSubmatch(p.Link); m != nil {
		return m[1]
	}
	return p.Link
}

// HasArxivProps reports whether the core arXiv metadata is populated.
func (p Paper) HasArxivProps() bool {
	return p.Title != "" && p.Link != "" && len(p.Authors) > 0 && !p.Published.IsZero()
}
