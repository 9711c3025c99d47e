// internal/rules/index.go
package rules

import (
	"sort"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * Candidate index over a rule set.
 *
 * Built wholesale from the active rules; never patched incrementally. Each
 * rule's condition is parsed and its AST walked to derive a requirement: a
 * set of action.type / file.extension values such that the rule can only
 * match a context carrying at least one of them.
 *
 *   action.type == 'x'      requires action.type in {x}
 *   file.extension == 'x'   requires file.extension in {x}
 *   A and B                 either side's requirement holds (the smaller is kept)
 *   A or B                  union, but only when both sides are constrained
 *   anything else           unconstrained
 *
 * Constrained rules go to byActionType / byFileExtension under each required
 * value; unconstrained rules and rules that fail to parse go to global, which
 * every candidate set includes. Category is always indexed. Pruning can only
 * drop a rule whose requirement the context violates, so recall is exact.
 */

// Context paths that drive candidate selection.
const (
	ActionTypePath    = "action.type"
	FileExtensionPath = "file.extension"
)

// RuleIndex maps coarse predicates to candidate rules.
type RuleIndex struct {
	byActionType    map[string][]*indexedRule
	byFileExtension map[string][]*indexedRule
	byCategory      map[string][]*indexedRule
	global          []*indexedRule
	size            int
}

// indexedRule pins a rule to its position in the source set so candidate
// order is deterministic.
type indexedRule struct {
	rule    *types.Rule
	ordinal int
}

// IndexStats summarizes bucket occupancy.
type IndexStats struct {
	Rules          int
	Global         int
	ActionTypes    int
	FileExtensions int
	Categories     int
}

// requirement is a disjunction: the rule matches only if the context's
// action.type is in actionTypes or its file.extension is in extensions.
// A nil requirement is unconstrained.
type requirement struct {
	actionTypes []string
	extensions  []string
}

func (r *requirement) width() int {
	return len(r.actionTypes) + len(r.extensions)
}

// BuildIndex indexes the active rules of a rule set.
func BuildIndex(ruleSet []*types.Rule) *RuleIndex {
	idx := &RuleIndex{
		byActionType:    make(map[string][]*indexedRule),
		byFileExtension: make(map[string][]*indexedRule),
		byCategory:      make(map[string][]*indexedRule),
	}

	for i, rule := range ruleSet {
		if rule == nil || !rule.Active {
			continue
		}
		entry := &indexedRule{rule: rule, ordinal: i}
		idx.size++
		idx.byCategory[rule.Category] = append(idx.byCategory[rule.Category], entry)

		req := extractRequirement(rule.Condition)
		if req == nil {
			idx.global = append(idx.global, entry)
			continue
		}
		for _, v := range req.actionTypes {
			idx.byActionType[v] = append(idx.byActionType[v], entry)
		}
		for _, v := range req.extensions {
			idx.byFileExtension[v] = append(idx.byFileExtension[v], entry)
		}
	}

	return idx
}

// Candidates returns the rules that may match ctx: those keyed by the
// context's action.type and file.extension plus all global rules,
// deduplicated and in rule-set order.
func (idx *RuleIndex) Candidates(ctx types.DecisionContext) []*types.Rule {
	seen := make(map[*indexedRule]struct{}, len(idx.global))
	var entries []*indexedRule

	add := func(list []*indexedRule) {
		for _, e := range list {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			entries = append(entries, e)
		}
	}

	if v, ok := Lookup(ctx, ActionTypePath).(string); ok {
		add(idx.byActionType[v])
	}
	if v, ok := Lookup(ctx, FileExtensionPath).(string); ok {
		add(idx.byFileExtension[v])
	}
	add(idx.global)

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ordinal < entries[j].ordinal
	})

	out := make([]*types.Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

// categoryRules returns the indexed rules of a category in rule-set order.
func (idx *RuleIndex) categoryRules(category string) []*types.Rule {
	entries := idx.byCategory[category]
	out := make([]*types.Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

// Stats reports bucket occupancy.
func (idx *RuleIndex) Stats() IndexStats {
	return IndexStats{
		Rules:          idx.size,
		Global:         len(idx.global),
		ActionTypes:    len(idx.byActionType),
		FileExtensions: len(idx.byFileExtension),
		Categories:     len(idx.byCategory),
	}
}

// extractRequirement parses a condition and derives its index requirement.
// Unparseable conditions are unconstrained.
func extractRequirement(condition string) *requirement {
	node, err := Parse(condition)
	if err != nil {
		return nil
	}
	return requirementOf(node)
}

func requirementOf(node Node) *requirement {
	op, ok := node.(*BinaryOp)
	if !ok {
		return nil
	}

	switch op.Operator {
	case "and":
		left, right := requirementOf(op.Left), requirementOf(op.Right)
		switch {
		case left == nil:
			return right
		case right == nil:
			return left
		case right.width() < left.width():
			return right
		default:
			return left
		}

	case "or":
		left, right := requirementOf(op.Left), requirementOf(op.Right)
		if left == nil || right == nil {
			return nil
		}
		return &requirement{
			actionTypes: union(left.actionTypes, right.actionTypes),
			extensions:  union(left.extensions, right.extensions),
		}

	case "==":
		id, ok := op.Left.(*Identifier)
		if !ok {
			return nil
		}
		lit, ok := op.Right.(*Literal)
		if !ok {
			return nil
		}
		s, ok := lit.Value.(string)
		if !ok {
			return nil
		}
		switch id.Path {
		case ActionTypePath:
			return &requirement{actionTypes: []string{s}}
		case FileExtensionPath:
			return &requirement{extensions: []string{s}}
		}
	}

	return nil
}

func union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
