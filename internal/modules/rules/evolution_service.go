package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/chartwatch/internal/clients/gemini"
	"github.com/aristath/chartwatch/internal/events"
)

// EvolutionResult describes one completed evolution step
type EvolutionResult struct {
	OldRule string `json:"old_rule"`
	NewRule string `json:"new_rule"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
}

// EvolutionService replaces the worst-performing rule with an AI-suggested
// rewrite. One templated prompt, one call, no retry.
type EvolutionService struct {
	store        *Store
	generator    gemini.Generator
	eventManager *events.Manager
	log          zerolog.Logger
}

// NewEvolutionService creates a new evolution service
func NewEvolutionService(store *Store, generator gemini.Generator, eventManager *events.Manager, log zerolog.Logger) *EvolutionService {
	return &EvolutionService{
		store:        store,
		generator:    generator,
		eventManager: eventManager,
		log:          log.With().Str("service", "evolution").Logger(),
	}
}

// EvolveWorstRule asks the model to rewrite the weakest rule and swaps it
// into the document with zeroed counters.
func (s *EvolutionService) EvolveWorstRule(ctx context.Context) (*EvolutionResult, error) {
	doc, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	worst := doc.WorstRule()
	if worst == "" {
		return nil, fmt.Errorf("no rules to evolve")
	}
	stats := doc.RuleStats[worst]

	prompt := fmt.Sprintf(
		"You are refining a chart-analysis heuristic. The trading rule %q has a record of %d wins and %d losses. "+
			"Rewrite it into a sharper single-sentence rule that addresses its weakness. "+
			"Reply with ONLY the new rule text, no quotes, no explanation.",
		worst, stats.Wins, stats.Losses,
	)

	reply, err := s.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("evolution call failed: %w", err)
	}

	newRule := sanitizeRuleText(reply)
	if newRule == "" {
		return nil, fmt.Errorf("model returned an empty rule")
	}
	if newRule == worst {
		return nil, fmt.Errorf("model returned the rule unchanged")
	}

	_, err = s.store.Update(func(doc *Document) (bool, error) {
		if _, ok := doc.RuleStats[worst]; !ok {
			return false, fmt.Errorf("rule no longer exists: %q", worst)
		}
		doc.ReplaceRule(worst, newRule)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("old_rule", worst).
		Str("new_rule", newRule).
		Int("wins", stats.Wins).
		Int("losses", stats.Losses).
		Msg("Rule evolved")

	s.eventManager.Emit(events.RuleEvolved, "rules", map[string]interface{}{
		"old_rule": worst,
		"new_rule": newRule,
	})

	return &EvolutionResult{
		OldRule: worst,
		NewRule: newRule,
		Wins:    stats.Wins,
		Losses:  stats.Losses,
	}, nil
}

// sanitizeRuleText normalizes a model reply into plain rule text.
// Models like to wrap short answers in quotes or fences.
func sanitizeRuleText(reply string) string {
	text := strings.TrimSpace(reply)
	text = strings.Trim(text, "`")
	text = strings.TrimSpace(text)

	// Keep only the first line when the model adds commentary anyway.
	// Quotes come off last so a quoted first line loses both of them.
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
	}
	text = strings.Trim(text, "\"'")
	return strings.TrimSpace(text)
}
