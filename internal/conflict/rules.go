package conflict

import (
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// Policy selects how a single field's divergence is resolved.
type Policy string

const (
	// PolicyLastWriter takes the value from whichever record carries the
	// later modification timestamp. Default for unruled fields.
	PolicyLastWriter Policy = "last_writer_wins"
	// PolicyFirstWriter takes the value from the earlier record; used for
	// immutable provenance fields.
	PolicyFirstWriter Policy = "first_writer_wins"
	// PolicyMerge combines both values structurally via the field's Merge.
	PolicyMerge Policy = "merge"
	// PolicyCustom delegates to a named resolver function.
	PolicyCustom Policy = "custom"
)

// CustomResolver combines two divergent values for a custom-policy field.
// localNewer reports which side carries the later record timestamp.
type CustomResolver func(local, remote any, localNewer bool) any

// Rule binds a field name to a resolution policy. When several rules match
// the same field the highest priority wins.
type Rule struct {
	Field    string
	Policy   Policy
	Priority int
	Resolver string // custom resolver name, PolicyCustom only
}

// RuleTable is the immutable rule configuration handed to a Resolver at
// construction. Extensions layer over the base rules by priority; the
// table itself is never mutated after build.
type RuleTable struct {
	rules     map[string]Rule
	fallback  Rule
	resolvers map[string]CustomResolver
}

// NewRuleTable builds a table from base rules plus an explicit extension
// list. Later duplicates only replace earlier rules at higher priority.
func NewRuleTable(base []Rule, extensions ...Rule) *RuleTable {
	t := &RuleTable{
		rules:     make(map[string]Rule, len(base)+len(extensions)),
		fallback:  Rule{Policy: PolicyLastWriter},
		resolvers: make(map[string]CustomResolver),
	}
	for _, r := range base {
		t.add(r)
	}
	for _, r := range extensions {
		t.add(r)
	}
	return t
}

func (t *RuleTable) add(r Rule) {
	if cur, ok := t.rules[r.Field]; ok && cur.Priority >= r.Priority {
		return
	}
	t.rules[r.Field] = r
}

// RegisterResolver binds a name to a custom resolver function. Names are
// referenced by PolicyCustom rules.
func (t *RuleTable) RegisterResolver(name string, fn CustomResolver) {
	t.resolvers[name] = fn
}

// Lookup returns the matching rule for a field, and whether the match was
// explicit. Fields with no explicit rule fall back to last-writer-wins; the
// caller reports the configuration gap.
func (t *RuleTable) Lookup(field string) (Rule, bool) {
	if r, ok := t.rules[field]; ok {
		return r, true
	}
	return t.fallback, false
}

func (t *RuleTable) resolver(name string) (CustomResolver, bool) {
	fn, ok := t.resolvers[name]
	return fn, ok
}

// resolveEndDate keeps an end date when only one side has one, and the
// later date when both do.
func resolveEndDate(local, remote any, _ bool) any {
	lp, rp := local.(*string), remote.(*string)
	switch {
	case lp == nil:
		return rp
	case rp == nil:
		return lp
	}
	lt, lerr := types.ParseDay(*lp)
	rt, rerr := types.ParseDay(*rp)
	if lerr != nil {
		return rp
	}
	if rerr != nil {
		return lp
	}
	if rt.After(lt) {
		return rp
	}
	return lp
}

// resolveEarliestCreated keeps the earlier creation timestamp regardless of
// which record is newer.
func resolveEarliestCreated(local, remote any, _ bool) any {
	lt, rt := local.(time.Time), remote.(time.Time)
	if rt.Before(lt) {
		return rt
	}
	return lt
}

// DefaultRules returns the standard rule table for habit records.
func DefaultRules() *RuleTable {
	t := NewRuleTable([]Rule{
		{Field: "id", Policy: PolicyFirstWriter, Priority: 100},
		{Field: "user_id", Policy: PolicyFirstWriter, Priority: 100},
		{Field: "created_at", Policy: PolicyCustom, Priority: 100, Resolver: "earliest_created"},
		{Field: "end_date", Policy: PolicyCustom, Priority: 90, Resolver: "latest_end_date"},
		{Field: "completion_history", Policy: PolicyMerge, Priority: 80},
		{Field: "usage_history", Policy: PolicyMerge, Priority: 80},
		{Field: "difficulty_history", Policy: PolicyMerge, Priority: 80},
		{Field: "name", Policy: PolicyLastWriter, Priority: 10},
		{Field: "icon", Policy: PolicyLastWriter, Priority: 10},
		{Field: "color", Policy: PolicyLastWriter, Priority: 10},
		{Field: "goal", Policy: PolicyLastWriter, Priority: 10},
		{Field: "schedule", Policy: PolicyLastWriter, Priority: 10},
		{Field: "baseline_count", Policy: PolicyLastWriter, Priority: 10},
		{Field: "target_count", Policy: PolicyLastWriter, Priority: 10},
		{Field: "start_date", Policy: PolicyLastWriter, Priority: 10},
		{Field: "deleted", Policy: PolicyLastWriter, Priority: 10},
	})
	t.RegisterResolver("latest_end_date", resolveEndDate)
	t.RegisterResolver("earliest_created", resolveEarliestCreated)
	return t
}
