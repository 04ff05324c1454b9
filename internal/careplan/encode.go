package careplan

import (
	"encoding/json"
	"time"
)

type taskDoc struct {
	NotificationEnabled bool       `json:"NotificationEnabled"`
	Repeat              string     `json:"Repeat"`
	CustomRepeat        *customDoc `json:"CustomRepeat,omitempty"`
	Time                string     `json:"Time"`
	LastPerformedAt     string     `json:"LastPerformedAt,omitempty"`
}

type customDoc struct {
	Value int    `json:"Value"`
	Unit  string `json:"Unit"`
}

// Encode renders the plan in canonical PascalCase JSON. Parse(Encode(p))
// yields p again.
func Encode(p CarePlan) ([]byte, error) {
	out := make(map[string]taskDoc, len(p))
	for _, t := range p.Tasks() {
		d := taskDoc{
			NotificationEnabled: t.NotificationEnabled,
			Repeat:              t.Repeat.String(),
			Time:                t.Time.String(),
		}
		if t.Repeat == RepeatCustom && t.Custom != nil {
			d.CustomRepeat = &customDoc{Value: t.Custom.Value, Unit: string(t.Custom.Unit)}
		}
		if t.HasLastPerformed() {
			d.LastPerformedAt = t.LastPerformedAt.Format(time.RFC3339Nano)
		}
		out[string(t.Key)] = d
	}
	return json.Marshal(out)
}
