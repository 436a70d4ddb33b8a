package internal

import (
	"encoding/json"
	"log"

	"github.com/Knetic/govaluate"
)

// ModerationRule overrides the initial status and/or pinned flag of a
// normalized event when its When expression matches the webhook payload.
// Payload fields are addressed by their flattened key, e.g.
// `[repository.full_name] == "octocat/hello"` or `action == "opened"`.
type ModerationRule struct {
	When   string `yaml:"when"`
	Status string `yaml:"status"`
	Pinned *bool  `yaml:"pinned"`
}

// ModerationDecision carries the overrides produced by matching rules.
// Empty Status / nil Pinned mean "leave the normalizer default".
type ModerationDecision struct {
	Status string
	Pinned *bool
}

type compiledModerationRule struct {
	status string
	pinned *bool
	expr   *govaluate.EvaluableExpression
}

// ModerationEngine evaluates moderation rules against webhook payloads.
type ModerationEngine struct {
	rules  []compiledModerationRule
	logger *log.Logger
}

// NewModerationEngine compiles the configured rules.
func NewModerationEngine(rules []ModerationRule, logger *log.Logger) (*ModerationEngine, error) {
	if logger == nil {
		logger = log.Default()
	}
	compiled := make([]compiledModerationRule, 0, len(rules))
	for _, rule := range rules {
		expr, err := govaluate.NewEvaluableExpression(rule.When)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledModerationRule{
			status: rule.Status,
			pinned: rule.Pinned,
			expr:   expr,
		})
	}
	return &ModerationEngine{rules: compiled, logger: logger}, nil
}

// Decide evaluates every rule against the raw webhook payload and merges
// the overrides of the ones that match, in configuration order. A rule
// that fails to evaluate (missing field, type mismatch) is skipped.
func (m *ModerationEngine) Decide(family string, rawPayload []byte) ModerationDecision {
	var decision ModerationDecision
	if m == nil || len(m.rules) == 0 {
		return decision
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return decision
	}
	params := Flatten(payload)
	params["event"] = family

	for _, rule := range m.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			m.logger.Printf("moderation rule eval failed: %v", err)
			continue
		}
		matched, _ := result.(bool)
		if !matched {
			continue
		}
		if rule.status != "" {
			decision.Status = rule.status
		}
		if rule.pinned != nil {
			decision.Pinned = rule.pinned
		}
	}
	return decision
}
