// Package dag analyzes a workflow's step dependencies: it extracts the
// dependency graph from embedded @refs, detects cycles, assigns
// topological levels for parallel scheduling, and computes branch
// membership for conditional skip propagation.
package dag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/stepflow/pkg/errors"
	"github.com/tombee/stepflow/pkg/workflow"
	"github.com/tombee/stepflow/pkg/workflow/ref"
)

// Analysis is the result of analyzing a workflow's steps.
type Analysis struct {
	// Levels maps step name to its topological level: 0 for steps with no
	// dependencies, otherwise 1 + the maximum level of its dependencies.
	Levels map[string]int

	// Groups holds the steps of each level in ascending level order.
	// Within a group, steps keep declaration order for deterministic
	// scheduling and logs.
	Groups [][]workflow.Step

	// Dependencies maps step name to the names of the steps it depends
	// on, in sorted order.
	Dependencies map[string][]string

	// BranchMembership maps step name to the name of its closest
	// dominating branch root (a step carrying an if whose every dependency
	// path to the DAG sources passes through it). Steps outside any branch
	// are absent from the map.
	BranchMembership map[string]string
}

// Analyze builds the level assignment and branch membership for the given
// steps. A circular dependency returns a ValidationError naming the cycle.
func Analyze(steps []workflow.Step) (*Analysis, error) {
	names := make(map[string]int, len(steps))
	for i, s := range steps {
		names[s.Name] = i
	}

	deps := make(map[string][]string, len(steps))
	for i := range steps {
		deps[steps[i].Name] = extractDependencies(&steps[i], names)
	}

	levels, err := assignLevels(steps, deps)
	if err != nil {
		return nil, err
	}

	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}
	groups := make([][]workflow.Step, maxLevel+1)
	for _, s := range steps {
		l := levels[s.Name]
		groups[l] = append(groups[l], s)
	}

	return &Analysis{
		Levels:           levels,
		Groups:           groups,
		Dependencies:     deps,
		BranchMembership: branchMembership(steps, deps, levels),
	}, nil
}

// extractDependencies unions the refs of the step's input, its loop items
// clause, and its condition, then keeps the roots that are step names.
// The condition contributes dependencies so a branch root never evaluates
// its predicate before the referenced step has completed.
func extractDependencies(step *workflow.Step, names map[string]int) []string {
	var refs []ref.Ref
	refs = append(refs, ref.ExtractRefs(step.Input)...)
	if loop := step.LoopFor(); loop != nil {
		refs = append(refs, ref.ExtractRefs(loop.Items)...)
	}
	if step.If != nil {
		if r, ok := ref.Parse(step.If.Ref); ok {
			refs = append(refs, r)
		}
		refs = append(refs, ref.ExtractRefs(step.If.Value)...)
	}

	seen := make(map[string]bool)
	var out []string
	for _, r := range refs {
		if r.Kind != ref.KindStep {
			continue
		}
		if _, isStep := names[r.Step]; !isStep {
			continue
		}
		if !seen[r.Step] {
			seen[r.Step] = true
			out = append(out, r.Step)
		}
	}
	sort.Strings(out)
	return out
}

// assignLevels computes levels by memoized DFS and reports cycles.
func assignLevels(steps []workflow.Step, deps map[string][]string) (map[string]int, error) {
	levels := make(map[string]int, len(steps))
	visiting := make(map[string]bool)
	done := make(map[string]bool)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if done[name] {
			return nil
		}
		if visiting[name] {
			cycle := append(cycleSuffix(path, name), name)
			return &errors.ValidationError{
				Field:      "steps",
				Message:    fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")),
				Suggestion: "remove the ref that closes the cycle",
			}
		}
		visiting[name] = true
		level := 0
		for _, dep := range deps[name] {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
			if levels[dep]+1 > level {
				level = levels[dep] + 1
			}
		}
		visiting[name] = false
		done[name] = true
		levels[name] = level
		return nil
	}

	for _, s := range steps {
		if err := visit(s.Name, nil); err != nil {
			return nil, err
		}
	}
	return levels, nil
}

// cycleSuffix trims the DFS path to the portion inside the cycle.
func cycleSuffix(path []string, name string) []string {
	for i, p := range path {
		if p == name {
			return path[i:]
		}
	}
	return path
}

// branchMembership assigns each step to its closest dominating branch
// root. A step belongs to root r when it transitively depends on r and no
// dependency chain reaches a source without passing through r. Ties
// between candidate roots break by level (deepest wins), then declaration
// order.
func branchMembership(steps []workflow.Step, deps map[string][]string, levels map[string]int) map[string]string {
	var roots []string
	for _, s := range steps {
		if s.If != nil {
			roots = append(roots, s.Name)
		}
	}
	membership := make(map[string]string)
	if len(roots) == 0 {
		return membership
	}

	order := make(map[string]int, len(steps))
	for i, s := range steps {
		order[s.Name] = i
	}

	for _, s := range steps {
		var best string
		haveBest := false
		for _, root := range roots {
			if root == s.Name {
				continue
			}
			if !reaches(s.Name, root, deps) || escapes(s.Name, root, deps) {
				continue
			}
			if !haveBest {
				best, haveBest = root, true
				continue
			}
			if levels[root] > levels[best] ||
				(levels[root] == levels[best] && order[root] < order[best]) {
				best = root
			}
		}
		if haveBest {
			membership[s.Name] = best
		}
	}
	return membership
}

// reaches reports whether target is a transitive dependency of name.
func reaches(name, target string, deps map[string][]string) bool {
	for _, d := range deps[name] {
		if d == target || reaches(d, target, deps) {
			return true
		}
	}
	return false
}

// escapes reports whether some dependency chain from name reaches a
// source step without passing through root.
func escapes(name, root string, deps map[string][]string) bool {
	if len(deps[name]) == 0 {
		return true
	}
	for _, d := range deps[name] {
		if d == root {
			continue
		}
		if escapes(d, root, deps) {
			return true
		}
	}
	return false
}
