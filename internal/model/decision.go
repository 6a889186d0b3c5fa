package model

// Action is the terminal classification of a metric record.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionRemove Action = "remove"
	ActionModify Action = "modify"
)

// Actions lists every action in report order.
var Actions = []Action{ActionKeep, ActionRemove, ActionModify}

// Retained reports whether records with this action survive cleanup.
func (a Action) Retained() bool {
	return a == ActionKeep || a == ActionModify
}

// Change keys carried by modify decisions.
const (
	ChangeMetricType = "metric_type"
	ChangeUnit       = "unit"
	ChangeReview     = "review"
)

// Decision is the classification of one record by the cleanup pass.
type Decision struct {
	OriginalID string            `json:"original_id"`
	SourceID   string            `json:"source_id"`
	Action     Action            `json:"action"`
	Rule       string            `json:"rule"`
	Reason     string            `json:"reason"`
	Confidence float64           `json:"confidence"`
	KeptID     string            `json:"kept_record_id,omitempty"`
	GroupKey   string            `json:"group_key,omitempty"`
	Protected  bool              `json:"protected,omitempty"`
	Changes    map[string]string `json:"changes,omitempty"`
}

// IsDuplicate reports whether the decision points at another record as the
// kept representative of its duplicate group.
func (d Decision) IsDuplicate() bool {
	return d.KeptID != ""
}

// Apply returns a copy of rec with the decision's field changes applied.
func (d Decision) Apply(rec MetricRecord) MetricRecord {
	out := rec
	if v, ok := d.Changes[ChangeMetricType]; ok {
		out.MetricType = v
	}
	if v, ok := d.Changes[ChangeUnit]; ok {
		out.Unit = v
	}
	return out
}

// DuplicateGroup is a set of records sharing an identical (value, unit, year).
type DuplicateGroup struct {
	Key       string   `json:"key"`
	MemberIDs []string `json:"member_ids"`
	KeptID    string   `json:"kept_record_id"`
}

// SkippedRecord is an input row rejected before classification.
type SkippedRecord struct {
	Row        int    `json:"row" csv:"row"`
	OriginalID string `json:"original_id,omitempty" csv:"original_id"`
	Reason     string `json:"reason" csv:"reason"`
}

// ScoreBreakdown holds the quality dimensions and their weighted final score.
type ScoreBreakdown struct {
	Confidence   float64 `json:"confidence"`
	Completeness float64 `json:"completeness"`
	Diversity    float64 `json:"diversity"`
	Uniqueness   float64 `json:"uniqueness"`
	Final        float64 `json:"final"`
}

// Summary aggregates the outcome of one cleanup pass.
type Summary struct {
	SourceID          string         `json:"source_id"`
	Total             int            `json:"total"`
	Kept              int            `json:"kept"`
	Removed           int            `json:"removed"`
	Modified          int            `json:"modified"`
	Skipped           int            `json:"skipped"`
	Protected         int            `json:"protected"`
	DuplicateGroups   int            `json:"duplicate_groups"`
	DuplicatesRemoved int            `json:"duplicates_removed"`
	RemovalRate       float64        `json:"removal_rate"`
	Quality           ScoreBreakdown `json:"quality"`
	RuleCounts        map[string]int `json:"rule_counts"`
}

// Percent returns n as a percentage of the summary total.
func (s Summary) Percent(n int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(s.Total)
}
