package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
)

func codeStep(name string, input any) workflow.Step {
	return workflow.Step{
		Name:   name,
		Action: workflow.ActionCode,
		Code:   &workflow.CodeAction{Source: "return input;"},
		Input:  input,
	}
}

func TestAnalyzeLevels(t *testing.T) {
	steps := []workflow.Step{
		codeStep("fetch", nil),
		codeStep("parse", map[string]any{"raw": "@fetch.body"}),
		codeStep("audit", nil),
		codeStep("report", map[string]any{"data": "@parse", "log": "@audit"}),
	}

	a, err := Analyze(steps)
	require.NoError(t, err)

	assert.Equal(t, 0, a.Levels["fetch"])
	assert.Equal(t, 1, a.Levels["parse"])
	assert.Equal(t, 0, a.Levels["audit"])
	assert.Equal(t, 2, a.Levels["report"])

	require.Len(t, a.Groups, 3)
	// Declaration order within a level.
	assert.Equal(t, "fetch", a.Groups[0][0].Name)
	assert.Equal(t, "audit", a.Groups[0][1].Name)
	assert.Equal(t, []string{"audit", "parse"}, a.Dependencies["report"])
}

func TestAnalyzeConditionContributesDependency(t *testing.T) {
	steps := []workflow.Step{
		codeStep("check", nil),
		{
			Name:   "gated",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return 1;"},
			If:     &workflow.Condition{Ref: "@check.ok", Operator: workflow.OpEqual, Value: true},
		},
	}

	a, err := Analyze(steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, a.Dependencies["gated"])
	assert.Equal(t, 1, a.Levels["gated"])
}

func TestAnalyzeLoopItemsContributesDependency(t *testing.T) {
	steps := []workflow.Step{
		codeStep("list", nil),
		{
			Name:   "each",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return item;"},
			Config: &workflow.StepConfig{
				Loop: &workflow.LoopConfig{For: &workflow.ForClause{Items: "@list.items"}},
			},
		},
	}

	a, err := Analyze(steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"list"}, a.Dependencies["each"])
}

func TestAnalyzeCycle(t *testing.T) {
	steps := []workflow.Step{
		codeStep("a", map[string]any{"x": "@b.out"}),
		codeStep("b", map[string]any{"x": "@a.out"}),
	}

	_, err := Analyze(steps)
	require.Error(t, err)

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "circular dependency")
	assert.Contains(t, verr.Message, "a -> b -> a")
}

func TestAnalyzeIgnoresNonStepRefs(t *testing.T) {
	steps := []workflow.Step{
		codeStep("only", map[string]any{
			"user":  "@input.user",
			"other": "@unknown.value",
		}),
	}

	a, err := Analyze(steps)
	require.NoError(t, err)
	assert.Empty(t, a.Dependencies["only"])
	assert.Equal(t, 0, a.Levels["only"])
}

func TestBranchMembership(t *testing.T) {
	steps := []workflow.Step{
		codeStep("check", nil),
		{
			Name:   "branch",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return 1;"},
			If:     &workflow.Condition{Ref: "@check.ok", Value: true},
		},
		codeStep("inner", map[string]any{"x": "@branch.out"}),
		codeStep("deeper", map[string]any{"x": "@inner.out"}),
		codeStep("outside", map[string]any{"x": "@check.ok"}),
	}

	a, err := Analyze(steps)
	require.NoError(t, err)

	assert.Equal(t, "branch", a.BranchMembership["inner"])
	assert.Equal(t, "branch", a.BranchMembership["deeper"])
	// The root itself is not a member of its own branch.
	assert.NotContains(t, a.BranchMembership, "branch")
	// A step with a path to the sources avoiding the root escapes it.
	assert.NotContains(t, a.BranchMembership, "outside")
	assert.NotContains(t, a.BranchMembership, "check")
}

func TestBranchMembershipDiamondEscapes(t *testing.T) {
	steps := []workflow.Step{
		codeStep("src", nil),
		{
			Name:   "gate",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return 1;"},
			If:     &workflow.Condition{Ref: "@src.ok", Value: true},
		},
		// join depends on both gate and src directly; the src path bypasses
		// the gate, so join is not dominated by it.
		codeStep("join", map[string]any{"a": "@gate.out", "b": "@src.ok"}),
	}

	a, err := Analyze(steps)
	require.NoError(t, err)
	assert.NotContains(t, a.BranchMembership, "join")
}

func TestBranchMembershipNestedRootsDeepestWins(t *testing.T) {
	steps := []workflow.Step{
		codeStep("seed", nil),
		{
			Name:   "outer",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return 1;"},
			If:     &workflow.Condition{Ref: "@seed.ok", Value: true},
		},
		{
			Name:   "nested",
			Action: workflow.ActionCode,
			Code:   &workflow.CodeAction{Source: "return 1;"},
			If:     &workflow.Condition{Ref: "@outer.ok", Value: true},
		},
		codeStep("leaf", map[string]any{"x": "@nested.out"}),
	}

	a, err := Analyze(steps)
	require.NoError(t, err)
	assert.Equal(t, "outer", a.BranchMembership["nested"])
	assert.Equal(t, "nested", a.BranchMembership["leaf"])
}
