package records

import (
	"fmt"
	"strconv"
)

// Map returns v as an object, or an empty one.
func Map(v any) map[string]any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}
	return map[string]any{}
}

// Slice returns v as an array, or an empty one.
func Slice(v any) []any {
	if s, ok := v.([]any); ok && s != nil {
		return s
	}
	return []any{}
}

// String returns v as text. Numbers and booleans are formatted; objects,
// arrays and nil yield "".
func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int, int64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// Path walks nested objects by key. Any missing or non-object step yields nil.
func Path(rec Record, keys ...string) any {
	var cur any = rec
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok || m == nil {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func (s Set) path(n Name, keys ...string) any { return Path(s[n], keys...) }

// Basic is profile_static.basic.
func (s Set) Basic() map[string]any { return Map(s.path(ProfileStatic, "basic")) }

// Goals is profile_static.health_goal.
func (s Set) Goals() map[string]any { return Map(s.path(ProfileStatic, "health_goal")) }

// Tags is profile_static.ai_inferred.tags.
func (s Set) Tags() []any { return Slice(s.path(ProfileStatic, "ai_inferred", "tags")) }

func (s Set) Conditions() []any  { return Slice(s.path(HealthRecord, "conditions")) }
func (s Set) Labs() []any        { return Slice(s.path(HealthRecord, "labs")) }
func (s Set) Medications() []any { return Slice(s.path(HealthRecord, "medications")) }
func (s Set) DietWeeks() []any   { return Slice(s.path(Diet2W, "weeks")) }

func (s Set) EventKeywords() []any { return Slice(s.path(RecentEvents, "summary_keywords")) }
func (s Set) EventClusters() []any { return Slice(s.path(RecentEvents, "clusters")) }
func (s Set) EventItems() []any    { return Slice(s.path(RecentEvents, "items")) }

func (s Set) Routines() []any { return Slice(s.path(Habits, "routines")) }
func (s Set) Rules() []any    { return Slice(s.path(Habits, "rules")) }

func (s Set) HealthSummary() string    { return String(s.path(HealthRecord, "summary")) }
func (s Set) DietSummary() string      { return String(s.path(Diet2W, "summary")) }
func (s Set) EventDigest() string      { return String(s.path(RecentEvents, "digest")) }
func (s Set) SmalltalkSummary() string { return String(s.path(Smalltalk, "summary")) }
func (s Set) SmalltalkTopics() []any   { return Slice(s.path(Smalltalk, "topics")) }

// Views bundles every accessor into one JSON-friendly object for the
// dashboard.
func (s Set) Views() map[string]any {
	return map[string]any{
		"basic":             s.Basic(),
		"goals":             s.Goals(),
		"tags":              s.Tags(),
		"conditions":        s.Conditions(),
		"labs":              s.Labs(),
		"medications":       s.Medications(),
		"diet_weeks":        s.DietWeeks(),
		"event_keywords":    s.EventKeywords(),
		"event_clusters":    s.EventClusters(),
		"event_items":       s.EventItems(),
		"routines":          s.Routines(),
		"rules":             s.Rules(),
		"health_summary":    s.HealthSummary(),
		"diet_summary":      s.DietSummary(),
		"event_digest":      s.EventDigest(),
		"smalltalk_summary": s.SmalltalkSummary(),
		"smalltalk_topics":  s.SmalltalkTopics(),
	}
}
