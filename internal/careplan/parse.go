package careplan

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Parse normalizes a raw care plan into typed tasks.
//
// raw may be JSON text (string, []byte, json.RawMessage), an already decoded
// map, or nil. Anything that cannot be decoded yields an empty plan; Parse
// never fails. Task keys match case-insensitively, and for every field both
// PascalCase and camelCase names are read, PascalCase winning when both exist.
// Timestamps without a zone are read in the local zone.
func Parse(raw any) CarePlan { return ParseIn(raw, time.Local) }

// ParseIn is Parse with timestamps lacking a zone read in loc.
func ParseIn(raw any, loc *time.Location) CarePlan {
	if loc == nil {
		loc = time.Local
	}
	m := decodeObject(raw)
	plan := CarePlan{}
	if len(m) == 0 {
		return plan
	}

	// Exact PascalCase keys win; among other spellings of the same task
	// the lexically smallest key is used so the result is deterministic.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	chosen := map[TaskKey]string{}
	for _, k := range keys {
		tk, ok := ParseTaskKey(k)
		if !ok {
			continue
		}
		prev, seen := chosen[tk]
		if !seen || (k == string(tk) && prev != string(tk)) {
			chosen[tk] = k
		}
	}

	for tk, k := range chosen {
		obj, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		plan[tk] = parseTask(tk, obj, loc)
	}
	return plan
}

func parseTask(key TaskKey, m map[string]any, loc *time.Location) CareTask {
	t := CareTask{
		Key:                 key,
		NotificationEnabled: true,
		Time:                DefaultTimeOfDay,
	}

	if v, ok := field(m, "NotificationEnabled"); ok {
		if b, ok := asBool(v); ok {
			t.NotificationEnabled = b
		}
	}
	if v, ok := field(m, "Repeat"); ok {
		if s, ok := v.(string); ok {
			t.Repeat = ParseRepeatRule(s)
		}
	}
	if t.Repeat == RepeatCustom {
		if v, ok := field(m, "CustomRepeat"); ok {
			// Left nil when unusable; Recurring() then reports false.
			t.Custom = parseCustomRepeat(v)
		}
	}
	if v, ok := field(m, "Time"); ok {
		if tod, ok := parseTimeValue(v); ok {
			t.Time = tod
		}
	}
	if v, ok := field(m, "LastPerformedAt"); ok {
		if at, ok := parseInstant(v, loc); ok {
			t.LastPerformedAt = at
		}
	}
	return t
}

func parseCustomRepeat(v any) *CustomRepeat {
	m, ok := v.(map[string]any)
	if !ok {
		if s, isStr := v.(string); isStr {
			m = decodeObject(s)
		}
		if m == nil {
			return nil
		}
	}
	rawVal, ok := field(m, "Value")
	if !ok {
		return nil
	}
	n, ok := asPositiveInt(rawVal)
	if !ok {
		return nil
	}
	rawUnit, ok := field(m, "Unit")
	if !ok {
		return nil
	}
	s, ok := rawUnit.(string)
	if !ok {
		return nil
	}
	u, ok := ParseUnit(s)
	if !ok {
		return nil
	}
	return &CustomRepeat{Value: n, Unit: u}
}

// field reads name in PascalCase, falling back to camelCase.
func field(m map[string]any, pascal string) (any, bool) {
	if v, ok := m[pascal]; ok && v != nil {
		return v, true
	}
	camel := strings.ToLower(pascal[:1]) + pascal[1:]
	if v, ok := m[camel]; ok && v != nil {
		return v, true
	}
	return nil, false
}

// decodeObject turns raw into a JSON object, unwrapping one level of
// string encoding (a JSON string whose content is the object).
func decodeObject(raw any) map[string]any {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		data = b
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	switch x := out.(type) {
	case map[string]any:
		return x
	case string:
		var inner map[string]any
		if err := json.Unmarshal([]byte(x), &inner); err != nil {
			return nil
		}
		return inner
	}
	return nil
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	case float64:
		return x != 0, true
	}
	return false, false
}

func asPositiveInt(v any) (int, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	n := int(math.Floor(f))
	if n < 1 {
		return 0, false
	}
	return n, true
}

var reClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?\s*([aApP][mM])?$`)

// parseTimeValue accepts "HH:MM", "HH:MM:SS", "h:mm AM" and full timestamps
// (whose own wall clock is used).
func parseTimeValue(v any) (TimeOfDay, bool) {
	s, ok := v.(string)
	if !ok {
		return TimeOfDay{}, false
	}
	s = strings.TrimSpace(s)
	if m := reClock.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if ampm := strings.ToLower(m[3]); ampm != "" {
			if h < 1 || h > 12 {
				return TimeOfDay{}, false
			}
			h %= 12
			if ampm == "pm" {
				h += 12
			}
		}
		tod := TimeOfDay{Hour: h, Minute: mm}
		return tod, tod.valid()
	}
	if at, ok := parseInstant(s, time.UTC); ok {
		return TimeOfDay{Hour: at.Hour(), Minute: at.Minute()}, true
	}
	return TimeOfDay{}, false
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

// parseInstant accepts RFC 3339 style strings and unix milliseconds. Strings
// without an offset are wall-clock times in loc.
func parseInstant(v any, loc *time.Location) (time.Time, bool) {
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)), true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range instantLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
