package conflict

import (
	"fmt"
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// Diagnostic reports a non-fatal irregularity noticed while resolving,
// such as a field with no configured rule.
type Diagnostic struct {
	Field   string
	Message string
}

// Resolver merges two divergent snapshots of one habit record, field by
// field, according to a rule table. Resolution performs no I/O and is
// deterministic for a fixed clock; the only non-input dependence is the
// fresh modification timestamp stamped on the output.
type Resolver struct {
	table *RuleTable
	now   func() time.Time
}

// NewResolver creates a resolver over the given rule table.
func NewResolver(table *RuleTable) *Resolver {
	return &Resolver{table: table, now: time.Now}
}

// Resolve merges local and remote into one record. Neither input is
// mutated. For every registered field: equal values are kept as-is,
// divergent values resolve per the field's rule. The output always
// carries a fresh LastModified so that repeated comparisons make
// monotonic progress.
func (r *Resolver) Resolve(local, remote *types.HabitRecord) (*types.HabitRecord, []Diagnostic) {
	recordNewer := local.LastModified.After(remote.LastModified)

	// Start from the newer side so any future field the registry does not
	// know about still follows last-writer-wins.
	var merged *types.HabitRecord
	if recordNewer {
		merged = local.Clone()
	} else {
		merged = remote.Clone()
	}

	var diags []Diagnostic
	for _, f := range Fields() {
		lv, rv := f.Get(local), f.Get(remote)
		if f.Equal(lv, rv) {
			continue
		}

		rule, explicit := r.table.Lookup(f.Name)
		if !explicit {
			diags = append(diags, Diagnostic{
				Field:   f.Name,
				Message: "no conflict rule configured, using last-writer-wins",
			})
		}

		// Per-field independence: a field edited later on one side wins
		// that field alone, regardless of which whole record is newer.
		localNewer := fieldNewer(local, remote, f.Name, recordNewer)
		f.Set(merged, r.apply(f, rule, lv, rv, localNewer, &diags))
	}

	merged.FieldModified = mergeFieldTimes(local, remote)
	merged.LastModified = r.now().UTC()
	return merged, diags
}

// fieldNewer decides which side last touched a field: the per-field edit
// timestamp when both sides carry one, otherwise the record timestamps.
func fieldNewer(local, remote *types.HabitRecord, field string, recordNewer bool) bool {
	lt, lok := local.FieldModified[field]
	rt, rok := remote.FieldModified[field]
	switch {
	case lok && rok:
		return lt.After(rt)
	case lok:
		return lt.After(remote.LastModified)
	case rok:
		return local.LastModified.After(rt)
	default:
		return recordNewer
	}
}

// mergeFieldTimes keeps the later per-field timestamp from either side so
// the merged record still carries field provenance for the next pass.
func mergeFieldTimes(local, remote *types.HabitRecord) map[string]time.Time {
	if local.FieldModified == nil && remote.FieldModified == nil {
		return nil
	}
	out := make(map[string]time.Time, len(local.FieldModified)+len(remote.FieldModified))
	for k, v := range local.FieldModified {
		out[k] = v
	}
	for k, v := range remote.FieldModified {
		if cur, ok := out[k]; !ok || v.After(cur) {
			out[k] = v
		}
	}
	return out
}

func (r *Resolver) apply(f Field, rule Rule, lv, rv any, localNewer bool, diags *[]Diagnostic) any {
	switch rule.Policy {
	case PolicyFirstWriter:
		if localNewer {
			return rv
		}
		return lv
	case PolicyMerge:
		if f.Merge == nil {
			*diags = append(*diags, Diagnostic{
				Field:   f.Name,
				Message: "merge policy on unmergeable field, using last-writer-wins",
			})
			return lastWriter(lv, rv, localNewer)
		}
		return f.Merge(lv, rv)
	case PolicyCustom:
		fn, ok := r.table.resolver(rule.Resolver)
		if !ok {
			*diags = append(*diags, Diagnostic{
				Field:   f.Name,
				Message: fmt.Sprintf("custom resolver %q not registered, using last-writer-wins", rule.Resolver),
			})
			return lastWriter(lv, rv, localNewer)
		}
		return fn(lv, rv, localNewer)
	default:
		return lastWriter(lv, rv, localNewer)
	}
}

func lastWriter(lv, rv any, localNewer bool) any {
	if localNewer {
		return lv
	}
	return rv
}

// Classify inspects two snapshots and builds a transient conflict record:
// the differing field names and a single classification. History maps rank
// as data conflicts, timestamps as timestamp conflicts, everything else as
// content; a mix is classified by the severest member (data > timestamp >
// content).
func Classify(local, remote *types.HabitRecord, detectedAt time.Time) *types.Conflict {
	var fields []string
	kind := types.ConflictContent
	for _, f := range Fields() {
		if f.Equal(f.Get(local), f.Get(remote)) {
			continue
		}
		fields = append(fields, f.Name)
		switch f.Kind {
		case types.ConflictData:
			kind = types.ConflictData
		case types.ConflictTimestamp:
			if kind == types.ConflictContent {
				kind = types.ConflictTimestamp
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &types.Conflict{
		HabitID:    local.ID,
		Kind:       kind,
		Fields:     fields,
		Local:      local,
		Remote:     remote,
		DetectedAt: detectedAt,
	}
}
