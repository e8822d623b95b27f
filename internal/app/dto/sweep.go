package dto

// SweepReport summarizes one background pass. Failed entities are logged and
// skipped; they never abort the pass.
type SweepReport struct {
	Job     string `json:"job"`
	Scanned int    `json:"scanned"`
	Changed int    `json:"changed"`
	Failed  int    `json:"failed"`
}
