package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

var paperCSVHeader = []string{
	"arxiv_id", "title", "authors", "published", "link", "categories",
	"summary", "focus", "attack_type", "abstract",
}

// writePapersCSV exports papers to a CSV file, one row per paper.
func writePapersCSV(path string, papers []paper.Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating CSV file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(paperCSVHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, p := range papers {
		var summary, focus, attack string
		if e := p.Enrichment; e != nil {
			summary, focus, attack = e.Summary, string(e.Focus), string(e.AttackType)
		}
		published := ""
		if !p.Published.IsZero() {
			published = p.Published.UTC().Format(time.RFC3339)
		}
		row := []string{
			p.ID(),
			p.Title,
			strings.Join(p.Authors, "; "),
			published,
			p.Link,
			strings.Join(p.Categories, " "),
			summary,
			focus,
			attack,
			sanitizeRISValue(p.Abstract),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing CSV output: %w", err)
	}
	return nil
}
