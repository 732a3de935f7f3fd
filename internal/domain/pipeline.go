package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage represents the stage of a pipeline run
type Stage string

const (
	StageInput     Stage = "INPUT"
	StageChecking  Stage = "CHECKING"
	StageConfirm   Stage = "CONFIRM"
	StageExecuting Stage = "EXECUTING"
	StageDone      Stage = "DONE"
	StageError     Stage = "ERROR"
)

// PipelineState represents the observable state of one pipeline run.
// It is owned and mutated exclusively by the pipeline; everyone else gets a Clone.
type PipelineState struct {
	ID             uuid.UUID
	Stage          Stage
	Request        TransferRequest
	Checks         []SecurityCheckResult // canonical order, empty at INPUT before a submission
	Warnings       []string              // non-empty iff a check failed
	AckRequired    bool
	Acknowledged   bool
	Errors         []FieldError
	ExecutionError string
	Receipt        *Receipt // set only at DONE
	UpdatedAt      time.Time
}

// NewPipelineState creates a fresh INPUT state with a new run ID
func NewPipelineState() *PipelineState {
	return &PipelineState{
		ID:        uuid.New(),
		Stage:     StageInput,
		UpdatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the state
func (s *PipelineState) Clone() PipelineState {
	out := *s

	if s.Checks != nil {
		out.Checks = make([]SecurityCheckResult, len(s.Checks))
		copy(out.Checks, s.Checks)
	}
	if s.Warnings != nil {
		out.Warnings = make([]string, len(s.Warnings))
		copy(out.Warnings, s.Warnings)
	}
	if s.Errors != nil {
		out.Errors = make([]FieldError, len(s.Errors))
		copy(out.Errors, s.Errors)
	}
	if s.Receipt != nil {
		receipt := *s.Receipt
		out.Receipt = &receipt
	}

	return out
}

// Check returns the result for a check name
func (s *PipelineState) Check(name CheckName) (SecurityCheckResult, bool) {
	for _, c := range s.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return SecurityCheckResult{}, false
}
