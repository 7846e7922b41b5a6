// Package policy implements the Policy Engine (spec §4.D): given an actor,
// operation, target kind, and a SecurityPolicy, returns an access Decision
// with column/row filters attached, and applies column filters to results.
package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"oms.heartbeat.dev/common"
	"oms.heartbeat.dev/ontology/model"
)

// AccessLevel → allowed-operations mapping (spec §4.D step 3).
var operationsByLevel = map[string]map[string]bool{
	"none":      {},
	"full":      nil, // nil means "every operation"
	"read":      {"read": true, "list": true, "get": true},
	"execute":   {"execute": true, "invoke": true},
	"self_only": {"read": true, "get": true},
}

// Actor is the minimal context the engine and its condition evaluator need.
type Actor struct {
	ID     string
	Role   string
	TeamID string
	Teams  []string
}

// Decision is the outcome of EvaluateAccess.
type Decision struct {
	Allowed       bool
	AccessLevel   string
	Scope         string
	ColumnFilters []string
	RowFilter     string
	Reason        string
}

// Engine evaluates decisions and memoises them in a bounded in-process map
// (cleared whole when it reaches its bound), which InvalidateCache empties
// after a policy reload.
type Engine struct {
	mu    sync.Mutex
	cache map[string]Decision
}

func New() *Engine {
	return &Engine{cache: make(map[string]Decision)}
}

// InvalidateCache clears every memoised decision. Call after any policy
// reload.
func (e *Engine) InvalidateCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]Decision)
}

// EvaluateAccess is deterministic given identical (actor, operation,
// targetKind, policy identity). The memo key carries the actor's role, id,
// team id and teams, since conditions and row filters read them.
func (e *Engine) EvaluateAccess(actor Actor, operation, targetKind string, policy *model.SecurityPolicy) Decision {
	const maxCachedDecisions = 4096

	if policy == nil {
		return Decision{Allowed: false, Reason: "no policy defined"}
	}

	key := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s", actor.Role, actor.ID, actor.TeamID,
		strings.Join(actor.Teams, ","), operation, targetKind, policy.ID)
	e.mu.Lock()
	if d, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return d
	}
	e.mu.Unlock()

	decision := e.evaluate(actor, operation, policy)

	e.mu.Lock()
	if len(e.cache) >= maxCachedDecisions {
		e.cache = make(map[string]Decision)
	}
	e.cache[key] = decision
	e.mu.Unlock()

	return decision
}

func (e *Engine) evaluate(actor Actor, operation string, policy *model.SecurityPolicy) Decision {
	rule := selectRule(policy.Rules, actor.Role)
	if rule == nil {
		return Decision{Allowed: false, Reason: fmt.Sprintf("no rule found for role %s", actor.Role)}
	}

	if !levelPermits(rule.AccessLevel, operation) {
		return Decision{Allowed: false, Reason: fmt.Sprintf("access level %s does not permit operation %s", rule.AccessLevel, operation)}
	}

	for _, cond := range rule.Conditions {
		if !evaluateCondition(cond, actor) {
			return Decision{Allowed: false, Reason: "condition not satisfied: " + cond}
		}
	}

	scope := common.PtrValue(rule.Scope)

	rowFilter := buildRowFilter(scope, rule.RowFilterExpr, actor)

	return Decision{
		Allowed:       true,
		AccessLevel:   rule.AccessLevel,
		Scope:         scope,
		ColumnFilters: []string(rule.ColumnFilters),
		RowFilter:     rowFilter,
		Reason:        "allowed",
	}
}

// selectRule sorts by priority descending and returns the first exact role
// match; failing that, the first wildcard ("*") rule; failing that, nil.
func selectRule(rules []model.PolicyRule, role string) *model.PolicyRule {
	sorted := make([]model.PolicyRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	for i := range sorted {
		if sorted[i].Role == role {
			return &sorted[i]
		}
	}
	for i := range sorted {
		if sorted[i].Role == "*" {
			return &sorted[i]
		}
	}
	return nil
}

func levelPermits(level, operation string) bool {
	ops, known := operationsByLevel[level]
	if !known {
		return false
	}
	if ops == nil {
		return true // full
	}
	return ops[operation]
}

// evaluateCondition supports "User has role X" (case-insensitive against
// actor.Role) and lhs == 'literal' expressions. Unsupported forms are
// logged as a warning and default to true per the preserved Open Question.
func evaluateCondition(cond string, actor Actor) bool {
	trimmed := strings.TrimSpace(cond)

	if strings.HasPrefix(strings.ToLower(trimmed), "user has role ") {
		role := strings.TrimSpace(trimmed[len("user has role "):])
		return strings.EqualFold(role, actor.Role)
	}

	if idx := strings.Index(trimmed, "=="); idx >= 0 {
		lhs := strings.TrimSpace(trimmed[:idx])
		rhs := strings.TrimSpace(trimmed[idx+2:])
		rhs = strings.Trim(rhs, `'"`)
		return resolveLHS(lhs, actor) == rhs
	}

	common.Logger.WithField("condition", cond).Warn("policy: unsupported condition form, treating as satisfied")
	return true
}

func resolveLHS(lhs string, actor Actor) string {
	switch lhs {
	case "role":
		return actor.Role
	case "actor_id", "actorId":
		return actor.ID
	case "team_id", "teamId":
		return actor.TeamID
	default:
		return lhs
	}
}

// buildRowFilter conjoins a scope-derived clause with the rule's row
// filter (placeholders {user_id}/{team_id} substituted).
func buildRowFilter(scope, ruleFilter string, actor Actor) string {
	var clauses []string

	switch scope {
	case "team_scoped":
		if len(actor.Teams) > 0 {
			quoted := make([]string, len(actor.Teams))
			for i, t := range actor.Teams {
				quoted[i] = "'" + t + "'"
			}
			clauses = append(clauses, fmt.Sprintf("teamId IN (%s)", strings.Join(quoted, ", ")))
		}
	case "self_only":
		clauses = append(clauses, fmt.Sprintf("playerId = '%s'", actor.ID))
	}

	if ruleFilter != "" {
		substituted := strings.NewReplacer(
			"{user_id}", actor.ID,
			"{team_id}", actor.TeamID,
		).Replace(ruleFilter)
		clauses = append(clauses, substituted)
	}

	return strings.Join(clauses, " AND ")
}

// ApplyColumnFilters removes each listed field from a copy of record;
// fields not present are ignored. Output keys are always a subset of
// input keys.
func ApplyColumnFilters(record map[string]interface{}, filters []string) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	excluded := make(map[string]bool, len(filters))
	for _, f := range filters {
		excluded[f] = true
	}
	for k, v := range record {
		if excluded[k] {
			continue
		}
		out[k] = v
	}
	return out
}
