package importer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"bonairerentalhub/server/internal/models"
)

var (
	ErrNoPendingDecision = errors.New("no import is awaiting a decision")
	ErrImportPending     = errors.New("an import is already awaiting a decision")
	ErrInvalidDecision   = errors.New("invalid duplicate decision")
)

type State string

const (
	StateScanning         State = "scanning"
	StateAwaitingDecision State = "awaiting_decision"
	StateCompleted        State = "completed"
)

// Decision is the operator's answer to a duplicate name
type Decision string

const (
	// DecisionCreate inserts the row as a new listing despite the name clash
	DecisionCreate Decision = "create"
	// DecisionMerge writes the row's present fields onto the existing listing
	DecisionMerge Decision = "merge"
	// DecisionIgnore drops the row
	DecisionIgnore Decision = "ignore"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionCreate, DecisionMerge, DecisionIgnore:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// DuplicateDecision describes the row a paused batch is waiting on
type DuplicateDecision struct {
	DuplicateName string          `json:"duplicateName"`
	Row           int             `json:"row"`
	Listing       models.Listing  `json:"listing"`
	Existing      *models.Listing `json:"existing,omitempty"`
}

// RowFailure is a row or category that could not be stored
type RowFailure struct {
	Row      int    `json:"row,omitempty"`
	Listing  string `json:"listing,omitempty"`
	Category string `json:"category,omitempty"`
	Error    string `json:"error"`
}

// Result summarises a batch. Persisted holds inserted and merged listings in
// the order they were written.
type Result struct {
	BatchID     string             `json:"batch_id"`
	State       State              `json:"state"`
	Persisted   []models.Listing   `json:"persisted"`
	Categories  []models.Category  `json:"categories"`
	Skipped     int                `json:"skipped"`
	Failed      []RowFailure       `json:"failed"`
	Pending     *DuplicateDecision `json:"pending,omitempty"`
	Unprocessed int                `json:"unprocessed"`
}

func (r *Result) clone() *Result {
	c := *r
	c.Persisted = slices.Clone(r.Persisted)
	c.Categories = slices.Clone(r.Categories)
	c.Failed = slices.Clone(r.Failed)
	if r.Pending != nil {
		p := *r.Pending
		c.Pending = &p
	}
	return &c
}
