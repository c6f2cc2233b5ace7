package domain

import "time"

// MaxKeywords caps the keyword list of a MetadataRecord.
const MaxKeywords = 49

// MetadataRecord is the generated title and keyword set for one asset.
type MetadataRecord struct {
	Title          string   `json:"title"`
	Keywords       []string `json:"keywords"`
	SourceFilename string   `json:"source_filename"`
	Category       string   `json:"category,omitempty"`
	Releases       string   `json:"releases,omitempty"`
}

// Credential is one service token in the rotation. Index is stable for the
// lifetime of the rotation and is what gets logged.
type Credential struct {
	Index int
	Token string
}

// WorkUnit pairs one asset with the credential assigned to process it.
type WorkUnit struct {
	Index      int
	Batch      int
	Asset      NormalizedAsset
	Credential Credential
}

// OutcomeStatus enumerates terminal item states.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the recorded result of one work unit. It is the record appended
// to the partial-results store.
type Outcome struct {
	RunID      string          `json:"run_id"`
	Index      int             `json:"index"`
	Batch      int             `json:"batch"`
	Filename   string          `json:"filename"`
	Status     OutcomeStatus   `json:"status"`
	Record     *MetadataRecord `json:"record,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stage      Stage           `json:"stage,omitempty"`
	Attempts   int             `json:"attempts"`
	Credential int             `json:"credential"`
	At         time.Time       `json:"at"`
}

// Succeeded reports whether the outcome carries a record.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded && o.Record != nil
}

// BatchResult holds the outcomes of one batch in input order.
type BatchResult struct {
	Batch      int
	Credential int
	Outcomes   []Outcome
}
