package conflict

import (
	"time"

	"github.com/hyperengineering/cadence/internal/types"
)

// Field describes one mergeable attribute of a HabitRecord: a stable name
// plus typed accessor closures. The explicit registry replaces runtime
// reflection; iterating it visits every field the resolver knows about.
type Field struct {
	Name string
	Kind types.ConflictKind

	Get   func(*types.HabitRecord) any
	Set   func(*types.HabitRecord, any)
	Equal func(a, b any) bool

	// Merge combines two values for fields under the merge policy.
	// Nil for fields that cannot be merged structurally.
	Merge func(a, b any) any
}

func eqAny(a, b any) bool { return a == b }

func eqCounts(a, b any) bool {
	am, bm := a.(map[string]int), b.(map[string]int)
	if len(am) != len(bm) {
		return false
	}
	for k, v := range am {
		if bv, ok := bm[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func eqEndDate(a, b any) bool {
	ap, bp := a.(*string), b.(*string)
	if ap == nil || bp == nil {
		return ap == bp
	}
	return *ap == *bp
}

// mergeMax unions two count maps, taking the maximum where both sides have
// a key. Taking the max rather than the sum keeps a double-sync from
// inflating recorded progress.
func mergeMax(a, b any) any {
	am, bm := a.(map[string]int), b.(map[string]int)
	out := make(map[string]int, len(am)+len(bm))
	for k, v := range am {
		out[k] = v
	}
	for k, v := range bm {
		if cur, ok := out[k]; !ok || v > cur {
			out[k] = v
		}
	}
	return out
}

// mergeMean unions two rating maps, averaging where both sides have a key.
// Integer division truncates toward zero, matching the historical behavior
// of the rating merge.
func mergeMean(a, b any) any {
	am, bm := a.(map[string]int), b.(map[string]int)
	out := make(map[string]int, len(am)+len(bm))
	for k, v := range am {
		out[k] = v
	}
	for k, v := range bm {
		if cur, ok := out[k]; ok {
			out[k] = (cur + v) / 2
		} else {
			out[k] = v
		}
	}
	return out
}

// registry lists every field the resolver iterates, in a stable order.
var registry = []Field{
	{
		Name: "id", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.ID },
		Set:   func(h *types.HabitRecord, v any) { h.ID = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "user_id", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.UserID },
		Set:   func(h *types.HabitRecord, v any) { h.UserID = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "name", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Name },
		Set:   func(h *types.HabitRecord, v any) { h.Name = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "icon", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Icon },
		Set:   func(h *types.HabitRecord, v any) { h.Icon = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "color", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Color },
		Set:   func(h *types.HabitRecord, v any) { h.Color = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "type", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Type },
		Set:   func(h *types.HabitRecord, v any) { h.Type = v.(types.HabitType) },
		Equal: eqAny,
	},
	{
		Name: "goal", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Goal },
		Set:   func(h *types.HabitRecord, v any) { h.Goal = v.(types.Goal) },
		Equal: eqAny,
	},
	{
		Name: "schedule", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Schedule },
		Set:   func(h *types.HabitRecord, v any) { h.Schedule = v.(types.Schedule) },
		Equal: func(a, b any) bool { return a.(types.Schedule).Equal(b.(types.Schedule)) },
	},
	{
		Name: "baseline_count", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.BaselineCount },
		Set:   func(h *types.HabitRecord, v any) { h.BaselineCount = v.(int) },
		Equal: eqAny,
	},
	{
		Name: "target_count", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.TargetCount },
		Set:   func(h *types.HabitRecord, v any) { h.TargetCount = v.(int) },
		Equal: eqAny,
	},
	{
		Name: "start_date", Kind: types.ConflictTimestamp,
		Get:   func(h *types.HabitRecord) any { return h.StartDate },
		Set:   func(h *types.HabitRecord, v any) { h.StartDate = v.(string) },
		Equal: eqAny,
	},
	{
		Name: "end_date", Kind: types.ConflictTimestamp,
		Get:   func(h *types.HabitRecord) any { return h.EndDate },
		Set:   func(h *types.HabitRecord, v any) { h.EndDate = v.(*string) },
		Equal: eqEndDate,
	},
	{
		Name: "completion_history", Kind: types.ConflictData,
		Get:   func(h *types.HabitRecord) any { return h.CompletionHistory },
		Set:   func(h *types.HabitRecord, v any) { h.CompletionHistory = v.(map[string]int) },
		Equal: eqCounts,
		Merge: mergeMax,
	},
	{
		Name: "difficulty_history", Kind: types.ConflictData,
		Get:   func(h *types.HabitRecord) any { return h.DifficultyHistory },
		Set:   func(h *types.HabitRecord, v any) { h.DifficultyHistory = v.(map[string]int) },
		Equal: eqCounts,
		Merge: mergeMean,
	},
	{
		Name: "usage_history", Kind: types.ConflictData,
		Get:   func(h *types.HabitRecord) any { return h.UsageHistory },
		Set:   func(h *types.HabitRecord, v any) { h.UsageHistory = v.(map[string]int) },
		Equal: eqCounts,
		Merge: mergeMax,
	},
	{
		Name: "deleted", Kind: types.ConflictContent,
		Get:   func(h *types.HabitRecord) any { return h.Deleted },
		Set:   func(h *types.HabitRecord, v any) { h.Deleted = v.(bool) },
		Equal: eqAny,
	},
	{
		Name: "created_at", Kind: types.ConflictTimestamp,
		Get:   func(h *types.HabitRecord) any { return h.CreatedAt },
		Set:   func(h *types.HabitRecord, v any) { h.CreatedAt = v.(time.Time) },
		Equal: func(a, b any) bool { return a.(time.Time).Equal(b.(time.Time)) },
	},
}

// Fields returns the registered field list. The slice is shared; callers
// must not modify it.
func Fields() []Field {
	return registry
}
