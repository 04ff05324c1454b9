package reminder

import (
	"fmt"
	"sort"
	"strings"

	"plantcare/internal/careplan"
	"plantcare/internal/garden"
)

// GroupKey identifies plants that can share one notification.
type GroupKey struct {
	Task   careplan.TaskKey
	Hour   int
	Minute int
	Repeat careplan.RepeatRule
	// Custom is the serialized custom interval, empty for other rules.
	Custom string
}

func keyOf(t careplan.CareTask) GroupKey {
	k := GroupKey{
		Task:   t.Key,
		Hour:   t.Time.Hour,
		Minute: t.Time.Minute,
		Repeat: t.Repeat,
	}
	if t.Repeat == careplan.RepeatCustom {
		k.Custom = t.Custom.Serialize()
	}
	return k
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s|%02d:%02d|%s|%s", k.Task, k.Hour, k.Minute, k.Repeat, k.Custom)
}

// Member is one plant's task inside a group.
type Member struct {
	PlantID   string
	PlantName string
	Task      careplan.CareTask
}

// Group is a set of plant tasks that fire together.
type Group struct {
	Key     GroupKey
	Members []Member
}

// Representative returns the task the group's trigger is computed from.
func (g Group) Representative() careplan.CareTask { return g.Members[0].Task }

// GroupPlants parses every plant's care plan and groups the tasks that want
// a reminder. Plants with unreadable care plans contribute nothing. Groups
// are ordered by key and members keep the plants' order.
func GroupPlants(plants []garden.Plant) []Group {
	idx := map[GroupKey]int{}
	var groups []Group
	for _, p := range plants {
		plan, _ := careplan.FromPlant(p.CarePlan, p.Journals)
		for _, t := range plan.Tasks() {
			if !t.Schedulable() {
				continue
			}
			k := keyOf(t)
			i, ok := idx[k]
			if !ok {
				i = len(groups)
				idx[k] = i
				groups = append(groups, Group{Key: k})
			}
			groups[i].Members = append(groups[i].Members, Member{PlantID: p.ID, PlantName: p.Name, Task: t})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key.String() < groups[j].Key.String() })
	return groups
}

// Title lists the member plant names.
func Title(names []string) string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n == "" {
			n = "Unnamed plant"
		}
		out = append(out, n)
	}
	return strings.Join(out, ", ")
}

var taskPhrases = map[careplan.TaskKey]string{
	careplan.Watering:  "water",
	careplan.Fertilize: "fertilize",
	careplan.Repotting: "repot",
	careplan.Pruning:   "prune",
	careplan.Humidity:  "mist",
	careplan.Soilcheck: "check the soil of",
}

// Body describes the task for n plants.
func Body(task careplan.TaskKey, n int) string {
	phrase, ok := taskPhrases[task]
	if !ok {
		phrase = "care for"
	}
	if n <= 1 {
		return fmt.Sprintf("Time to %s your plant.", phrase)
	}
	return fmt.Sprintf("Time to %s your %d plants.", phrase, n)
}
