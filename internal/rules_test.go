package internal

import "testing"

func boolPtr(v bool) *bool { return &v }

// TestModerationEngineStatusOverride tests that a matching rule overrides the status.
func TestModerationEngineStatusOverride(t *testing.T) {
	engine, err := NewModerationEngine([]ModerationRule{
		{When: `event == "push" && ref != "refs/heads/main"`, Status: "pending"},
	}, nil)
	if err != nil {
		t.Fatalf("new moderation engine: %v", err)
	}

	decision := engine.Decide("push", []byte(`{"ref":"refs/heads/feature-x"}`))
	if decision.Status != "pending" {
		t.Fatalf("expected status pending, got %q", decision.Status)
	}
	if decision.Pinned != nil {
		t.Fatalf("expected no pinned override")
	}

	decision = engine.Decide("push", []byte(`{"ref":"refs/heads/main"}`))
	if decision.Status != "" {
		t.Fatalf("expected no override for main, got %q", decision.Status)
	}
}

// TestModerationEngineFlattenedFields tests that nested payload fields are addressable.
func TestModerationEngineFlattenedFields(t *testing.T) {
	engine, err := NewModerationEngine([]ModerationRule{
		{When: `[release.prerelease] == true`, Pinned: boolPtr(false)},
	}, nil)
	if err != nil {
		t.Fatalf("new moderation engine: %v", err)
	}

	decision := engine.Decide("release", []byte(`{"release":{"prerelease":true}}`))
	if decision.Pinned == nil || *decision.Pinned != false {
		t.Fatalf("expected pinned override false, got %v", decision.Pinned)
	}
}

// TestModerationEngineLaterRuleWins tests that rules merge in configuration order.
func TestModerationEngineLaterRuleWins(t *testing.T) {
	engine, err := NewModerationEngine([]ModerationRule{
		{When: `event == "issues"`, Status: "pending"},
		{When: `action == "opened"`, Status: "approved"},
	}, nil)
	if err != nil {
		t.Fatalf("new moderation engine: %v", err)
	}

	decision := engine.Decide("issues", []byte(`{"action":"opened"}`))
	if decision.Status != "approved" {
		t.Fatalf("expected later rule to win, got %q", decision.Status)
	}
}

// TestModerationEngineEvalFailureSkipped tests that an unevaluable rule never matches.
func TestModerationEngineEvalFailureSkipped(t *testing.T) {
	engine, err := NewModerationEngine([]ModerationRule{
		{When: `missing_field > 3`, Status: "rejected"},
	}, nil)
	if err != nil {
		t.Fatalf("new moderation engine: %v", err)
	}

	decision := engine.Decide("push", []byte(`{"ref":"refs/heads/main"}`))
	if decision.Status != "" {
		t.Fatalf("expected no override, got %q", decision.Status)
	}
}
