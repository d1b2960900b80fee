package notion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/henrybloomingdale/paperstack/internal/paper"
)

var (
	// ErrNoDatabase is returned when the sink has no target database.
	ErrNoDatabase = errors.New("notion database ID is not configured")
	// ErrSchemaMismatch is returned when the database lacks required columns.
	ErrSchemaMismatch = errors.New("notion database schema mismatch")
	// ErrInvalidPaper is returned when a paper is missing required fields.
	ErrInvalidPaper = errors.New("paper failed validation")
)

type sinkTarget struct {
	Token      string `validate:"required"`
	DatabaseID string `validate:"required,uuid"`
}

// Sink writes papers as pages of one Notion database.
type Sink struct {
	client     *Client
	databaseID string
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewSink creates a sink for databaseID. The ID is normalized with FormatID;
// an unusable ID is kept as-is so Preflight and Write report it.
func NewSink(client *Client, databaseID string, logger zerolog.Logger) *Sink {
	if id, err := FormatID(databaseID); err == nil {
		databaseID = id
	}
	return &Sink{
		client:     client,
		databaseID: databaseID,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With().Str("component", "notion").Logger(),
	}
}

// DatabaseID returns the normalized target database ID.
func (s *Sink) DatabaseID() string { return s.databaseID }

func (s *Sink) checkTarget() error {
	target := sinkTarget{DatabaseID: s.databaseID}
	if s.client != nil {
		target.Token = s.client.Token
	}
	if err := s.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Field() == "Token" {
					return fmt.Errorf("%w: token is required", ErrInvalidToken)
				}
			}
		}
		return fmt.Errorf("%w: %q", ErrNoDatabase, s.databaseID)
	}
	return nil
}

// Preflight validates the token and checks that the database is reachable
// and has every column the sink writes. It is called once before a run.
func (s *Sink) Preflight(ctx context.Context) error {
	if err := s.checkTarget(); err != nil {
		return err
	}

	user, err := s.client.ValidateToken(ctx)
	if err != nil {
		return fmt.Errorf("validating token: %w", err)
	}
	s.logger.Debug().Str("bot", user.Name).Msg("notion token valid")

	db, err := s.client.RetrieveDatabase(ctx, s.databaseID)
	if err != nil {
		return fmt.Errorf("retrieving database %s: %w", s.databaseID, err)
	}

	var problems []string
	for name, typ := range RequiredProperties {
		prop, ok := db.Properties[name]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("missing %q", name))
		case prop.GetType() != typ:
			problems = append(problems, fmt.Sprintf("%q is %s, want %s", name, prop.GetType(), typ))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(problems, "; "))
	}
	return nil
}

// Write creates one page for p. Nothing is sent when the target is not
// configured or the paper lacks a title or a valid link.
func (s *Sink) Write(ctx context.Context, p paper.Paper) error {
	if err := s.checkTarget(); err != nil {
		return err
	}
	if err := s.validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPaper, err)
	}

	page, err := s.client.CreatePage(ctx, s.databaseID, PageProperties(p))
	if err != nil {
		return fmt.Errorf("creating page: %w", err)
	}
	s.logger.Debug().Str("paper", p.ID()).Str("page", string(page.ID)).Msg("page created")
	return nil
}

// Seen reports whether the database already holds a page for the arXiv
// paper id, in any version. Pages are matched on the URL column.
func (s *Sink) Seen(ctx context.Context, id string) (bool, error) {
	if err := s.checkTarget(); err != nil {
		return false, err
	}
	// arXiv links carry a version suffix; other links are matched whole.
	needle := "/abs/" + id + "v"
	if strings.Contains(id, "://") {
		needle = id
	}
	found, err := s.client.HasPageWithURL(ctx, s.databaseID, PropURL, needle)
	if err != nil {
		return false, fmt.Errorf("querying database: %w", err)
	}
	return found, nil
}
