package domain

import "context"

// Describer is the external content-understanding capability.
type Describer interface {
	Describe(ctx context.Context, req DescribeRequest) (string, error)
}

// DescribeRequest is one prompt against one image under one credential.
type DescribeRequest struct {
	Image    []byte
	MIME     string
	Prompt   string
	APIKey   string
	ItemName string
}

// PartialStore durably records item outcomes as they complete. Append must
// be safe for concurrent use.
type PartialStore interface {
	Append(ctx context.Context, outcome Outcome) error
	Load(ctx context.Context, runID string) ([]Outcome, error)
	Ping(ctx context.Context) error
}

// QuotaDecision is the result of a quota check.
type QuotaDecision struct {
	Allowed   bool
	Limit     int
	Used      int
	Remaining int
}

// QuotaPolicy decides whether a run of count items may proceed and reserves
// the capacity when it may.
type QuotaPolicy interface {
	CheckAndReserve(ctx context.Context, count int) (QuotaDecision, error)
}

// Uploader publishes a finished artifact and returns a retrievable link.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string) (string, error)
}
