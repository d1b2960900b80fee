package paper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrich_AllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		in      Enrichment
		wantErr bool
	}{
		{name: "complete", in: Enrichment{Summary: "s", Focus: FocusSafety, AttackType: AttackEvasion}},
		{name: "missing summary", in: Enrichment{Focus: FocusSafety, AttackType: AttackEvasion}, wantErr: true},
		{name: "blank summary", in: Enrichment{Summary: "  ", Focus: FocusSafety, AttackType: AttackEvasion}, wantErr: true},
		{name: "missing focus", in: Enrichment{Summary: "s", AttackType: AttackEvasion}, wantErr: true},
		{name: "missing attack", in: Enrichment{Summary: "s", Focus: FocusSafety}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paper{Title: "t", Link: "http://arxiv.org/abs/2301.12345v1"}
			err := p.Enrich(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrIncompleteEnrichment)
				assert.False(t, p.Enriched())
				assert.Nil(t, p.Enrichment)
				return
			}
			require.NoError(t, err)
			require.True(t, p.Enriched())
			assert.Equal(t, tt.in, *p.Enrichment)
		})
	}
}

func TestID(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"http://arxiv.org/abs/2301.12345v1", "2301.12345"},
		{"https://arxiv.org/abs/2301.1234", "2301.1234"},
		{"http://arxiv.org/abs/hep-th/9901001v2", "hep-th/9901001"},
		{"https://arxiv.org/pdf/2405.00001v3", "2405.00001"},
		{"https://example.com/paper", "https://example.com/paper"},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			assert.Equal(t, tt.want, Paper{Link: tt.link}.ID())
		})
	}
}

func TestHasArxivProps(t *testing.T) {
	p := Paper{
		Title:     "Jailbreaking LLMs",
		Link:      "http://arxiv.org/abs/2301.12345v1",
		Authors:   []string{"A. Author"},
		Published: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, p.HasArxivProps())

	p.Authors = nil
	assert.False(t, p.HasArxivProps())
}

func TestParseFocus(t *testing.T) {
	tests := []struct {
		in   string
		want Focus
	}{
		{"Offensive", FocusOffensive},
		{"  defensive\n", FocusDefensive},
		{"`Adversarial`", FocusAdversarial},
		{"Safety.", FocusSafety},
		{"- Other", FocusOther},
		{"Offensive security research", FocusUnclassified},
		{"", FocusUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFocus(tt.in))
		})
	}
}

func TestParseAttackType(t *testing.T) {
	tests := []struct {
		in   string
		want AttackType
	}{
		{"Evasion", AttackEvasion},
		{"Model Extraction", AttackExtraction},
		{"`Inversion`", AttackInversion},
		{"data poisoning", AttackPoisoning},
		{"Prompt Injection", AttackPromptInjection},
		{"prompt-injection", AttackPromptInjection},
		{"None", AttackOther},
		{"Other", AttackOther},
		{"Jailbreak", AttackUnclassified},
		{"Membership inference", AttackUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAttackType(tt.in))
		})
	}
}
