package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/chartwatch/internal/events"
)

// stubGenerator returns canned replies for the Generator interface
type stubGenerator struct {
	textReply string
	textErr   error
	prompts   []string
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.textReply, s.textErr
}

func (s *stubGenerator) AnalyzeImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	return s.textReply, s.textErr
}

func TestEvolutionService_ReplacesWorstRule(t *testing.T) {
	store := newTestStore(t)
	doc := DefaultDocument()
	doc.RecordLoss("Check RSI for 70+ levels.", 2.0)
	doc.RecordLoss("Check RSI for 70+ levels.", 2.0)
	doc.RecordWin("Avoid chasing vertical moves.")
	require.NoError(t, store.Save(doc))

	gen := &stubGenerator{textReply: "\"Only trust RSI 70+ when volume confirms.\"\nExplanation: ..."}
	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := NewEvolutionService(store, gen, events.NewManager(log), log)

	result, err := service.EvolveWorstRule(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Check RSI for 70+ levels.", result.OldRule)
	assert.Equal(t, "Only trust RSI 70+ when volume confirms.", result.NewRule)
	assert.Equal(t, 0, result.Wins)
	assert.Equal(t, 2, result.Losses)

	// Prompt carries the losing record
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Check RSI for 70+ levels.")
	assert.Contains(t, gen.prompts[0], "2 losses")

	// New rule starts with zeroed counters, old one is gone
	saved, err := store.Load()
	require.NoError(t, err)
	assert.NotContains(t, saved.RuleStats, "Check RSI for 70+ levels.")
	assert.Equal(t, Stats{}, saved.RuleStats["Only trust RSI 70+ when volume confirms."])
	assert.Equal(t, 1, saved.RuleStats["Avoid chasing vertical moves."].Wins)
}

func TestEvolutionService_GeneratorFailure(t *testing.T) {
	store := newTestStore(t)
	gen := &stubGenerator{textErr: fmt.Errorf("upstream unavailable")}
	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := NewEvolutionService(store, gen, events.NewManager(log), log)

	_, err := service.EvolveWorstRule(context.Background())
	assert.ErrorContains(t, err, "evolution call failed")

	// Document untouched
	doc, loadErr := store.Load()
	require.NoError(t, loadErr)
	assert.Len(t, doc.RuleStats, 2)
}

func TestEvolutionService_EmptyReply(t *testing.T) {
	store := newTestStore(t)
	gen := &stubGenerator{textReply: "  ``  "}
	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := NewEvolutionService(store, gen, events.NewManager(log), log)

	_, err := service.EvolveWorstRule(context.Background())
	assert.ErrorContains(t, err, "empty rule")
}

func TestEvolutionService_UnchangedReply(t *testing.T) {
	store := newTestStore(t)
	worst := DefaultDocument().WorstRule()
	gen := &stubGenerator{textReply: worst}
	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := NewEvolutionService(store, gen, events.NewManager(log), log)

	_, err := service.EvolveWorstRule(context.Background())
	assert.ErrorContains(t, err, "unchanged")
}

func TestSanitizeRuleText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Buy the dip.", "Buy the dip."},
		{"quoted", `"Buy the dip."`, "Buy the dip."},
		{"fenced", "```\nBuy the dip.\n```", "Buy the dip."},
		{"multiline", "Buy the dip.\nBecause dips recover.", "Buy the dip."},
		{"quoted then commentary", "\"Buy the dip.\"\nExplanation: dips recover.", "Buy the dip."},
		{"whitespace", "   \n  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeRuleText(tt.input))
		})
	}
}
