package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

var (
	// ErrInvalidLimit is returned when a search asks for fewer than one result.
	ErrInvalidLimit = errors.New("limit must be >= 1")
	// ErrEmptyQuery is returned when a search has no query text.
	ErrEmptyQuery = errors.New("search query cannot be empty")
)

// Search returns a lazy sequence of at most limit papers in the order
// arXiv sorts them. Pages are requested only as the caller consumes the
// sequence, and ranging over it again issues a fresh query. A failure is
// yielded once as a *SourceError, after which the sequence ends.
func (c *Client) Search(ctx context.Context, query string, limit int, sort Sort) iter.Seq2[paper.Paper, error] {
	return func(yield func(paper.Paper, error) bool) {
		query = strings.TrimSpace(query)
		if query == "" {
			yield(paper.Paper{}, ErrEmptyQuery)
			return
		}
		if limit < 1 {
			yield(paper.Paper{}, ErrInvalidLimit)
			return
		}

		yielded, start := 0, 0
		for yielded < limit {
			size := min(c.PageSize, limit-yielded)
			f, err := c.fetchPage(ctx, query, start, size, sort)
			if err != nil {
				yield(paper.Paper{}, err)
				return
			}
			if len(f.Entries) == 0 {
				return
			}

			for i := range f.Entries {
				p, ok := entryToPaper(&f.Entries[i])
				if !ok {
					continue
				}
				if !yield(p, nil) {
					return
				}
				yielded++
				if yielded >= limit {
					return
				}
			}

			start += len(f.Entries)
			if start >= f.TotalResults {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[paper.Paper, error]) ([]paper.Paper, error) {
	var papers []paper.Paper
	for p, err := range seq {
		if err != nil {
			return papers, err
		}
		papers = append(papers, p)
	}
	return papers, nil
}

func (c *Client) fetchPage(ctx context.Context, query string, start, size int, sort Sort) (*feed, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(start))
	params.Set("max_results", strconv.Itoa(size))
	params.Set("sortBy", sort.apiValue())
	params.Set("sortOrder", "descending")

	c.Logger.Debug().Int("start", start).Int("size", size).Str("sort", string(sort)).Msg("requesting arxiv page")

	body, err := c.DoGet(ctx, "query", params)
	if err != nil {
		return nil, &SourceError{Op: "query", Err: err}
	}

	var f feed
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, &SourceError{Op: "decode", Err: fmt.Errorf("parsing atom feed: %w", err)}
	}

	// arXiv reports malformed queries as a single entry under /api/errors.
	if len(f.Entries) == 1 && strings.Contains(f.Entries[0].ID, "/api/errors") {
		return nil, &SourceError{Op: "query", Err: fmt.Errorf("arXiv rejected query: %s", collapse(f.Entries[0].Summary))}
	}

	return &f, nil
}

func entryToPaper(e *entry) (paper.Paper, bool) {
	link := strings.TrimSpace(e.ID)
	if link == "" {
		return paper.Paper{}, false
	}

	p := paper.Paper{
		Title:    collapse(e.Title),
		Abstract: collapse(e.Summary),
		Link:     link,
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, cat := range e.Categories {
		if cat.Term != "" {
			p.Categories = append(p.Categories, cat.Term)
		}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated)); err == nil {
		p.Updated = t
	}
	return p, true
}

// collapse folds the hard-wrapped whitespace arXiv uses in titles and abstracts.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
