package reminder

import (
	"encoding/json"
	"slices"

	"plantcare/internal/careplan"
	"plantcare/internal/localnotify"
)

// Payload keys written on every notification this package schedules.
const (
	PayloadType     = "careplan"
	KeyType         = "type"
	KeyGroup        = "groupKey"
	KeyTask         = "taskKey"
	KeyPlantIDs     = "plantIds"
	KeyPlantNames   = "plantNames"
	KeyRepeat       = "repeat"
	KeyTime         = "time"
	KeyCustomRepeat = "customRepeat"
)

// Owned reports whether a notification was scheduled by this package.
func Owned(p localnotify.Payload) bool { return p[KeyType] == PayloadType }

func buildPayload(g Group) localnotify.Payload {
	ids := make([]string, 0, len(g.Members))
	names := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.PlantID)
		names = append(names, m.PlantName)
	}
	p := localnotify.Payload{
		KeyType:       PayloadType,
		KeyGroup:      g.Key.String(),
		KeyTask:       string(g.Key.Task),
		KeyPlantIDs:   encodeList(ids),
		KeyPlantNames: encodeList(names),
		KeyRepeat:     g.Key.Repeat.String(),
		KeyTime:       careplan.TimeOfDay{Hour: g.Key.Hour, Minute: g.Key.Minute}.String(),
	}
	if g.Key.Custom != "" {
		p[KeyCustomRepeat] = g.Key.Custom
	}
	return p
}

// PlantIDs returns the member plant ids carried by p.
func PlantIDs(p localnotify.Payload) []string { return decodeList(p[KeyPlantIDs]) }

// PlantNames returns the member plant names carried by p.
func PlantNames(p localnotify.Payload) []string { return decodeList(p[KeyPlantNames]) }

// Matches reports whether p is an owned notification covering plantID's task.
func Matches(p localnotify.Payload, plantID string, task careplan.TaskKey) bool {
	if !Owned(p) || p[KeyTask] != string(task) {
		return false
	}
	return slices.Contains(PlantIDs(p), plantID)
}

func encodeList(v []string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
