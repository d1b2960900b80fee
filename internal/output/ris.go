package output

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

// writePapersRIS exports papers to RIS format for citation managers.
func writePapersRIS(path string, papers []paper.Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating RIS file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, p := range papers {
		// arXiv preprints are unpublished works.
		writeRISTag(w, "TY", "UNPB")
		writeRISTag(w, "TI", p.Title)

		for _, au := range p.Authors {
			writeRISTag(w, "AU", risAuthor(au))
		}

		if !p.Published.IsZero() {
			writeRISTag(w, "PY", p.Published.Format("2006"))
			writeRISTag(w, "DA", p.Published.Format("2006/01/02"))
		}
		writeRISTag(w, "PB", "arXiv")
		writeRISTag(w, "AB", p.Abstract)
		for _, c := range p.Categories {
			writeRISTag(w, "KW", c)
		}
		if e := p.Enrichment; e != nil {
			writeRISTag(w, "N1", e.Summary)
			writeRISTag(w, "KW", string(e.Focus))
			writeRISTag(w, "KW", string(e.AttackType))
		}
		if id := p.ID(); id != p.Link {
			writeRISTag(w, "ID", "arXiv:"+id)
		}
		writeRISTag(w, "UR", p.Link)
		writeRISTag(w, "ER", "")

		if i < len(papers)-1 {
			if _, err := w.WriteString("\n"); err != nil {
				return fmt.Errorf("writing RIS separator: %w", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing RIS output: %w", err)
	}

	return nil
}

func writeRISTag(w *bufio.Writer, tag, value string) {
	if tag == "" {
		return
	}
	if tag != "ER" && strings.TrimSpace(value) == "" {
		return
	}
	if tag == "ER" {
		_, _ = w.WriteString("ER  -\n")
		return
	}
	_, _ = w.WriteString(tag + "  - " + sanitizeRISValue(value) + "\n")
}

func sanitizeRISValue(v string) string {
	v = strings.ReplaceAll(v, "\r\n", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}

// risAuthor converts "Given Family" to the "Family, Given" form citation
// managers expect. Names with a single token or already containing a comma
// are kept as they are.
func risAuthor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ",") {
		return name
	}
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return name
	}
	last := fields[len(fields)-1]
	return last + ", " + strings.Join(fields[:len(fields)-1], " ")
}
