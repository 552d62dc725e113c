package domain

import "time"

// Trigger records what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerCLI      Trigger = "cli"
)

// RunStatus enumerates terminal and in-flight run states.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// OriginReport is the per-origin fetch outcome.
type OriginReport struct {
	Origin    Origin `json:"origin"`
	Source    string `json:"source"`
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// Diagnostic records a per-document problem that did not stop the run.
type Diagnostic struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// HeldCandidate is a candidate routed to a human instead of the diff.
type HeldCandidate struct {
	Name        string `json:"name"`
	DocumentID  string `json:"document_id"`
	URL         string `json:"url,omitempty"`
	Reason      string `json:"reason"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// RunSummary is the auditable record of a run, produced even when nothing is found.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	Trigger    Trigger         `json:"trigger"`
	Status     RunStatus       `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
	Since      time.Time       `json:"since"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Origins    []OriginReport  `json:"origins"`
	Screened   int             `json:"screened_out"`
	Scanned    int             `json:"documents_scanned"`
	Candidates int             `json:"candidates_found"`
	Accepted   int             `json:"accepted"`
	Rejected   int             `json:"rejected"`
	Review     int             `json:"needs_review"`
	Duplicates int             `json:"duplicates"`
	Conflicts  int             `json:"conflicts"`
	NewNames   []string        `json:"new_names"`
	Held       []HeldCandidate `json:"held,omitempty"`
	Dropped    []HeldCandidate `json:"rejected_candidates,omitempty"`
	Diagnostic []Diagnostic    `json:"diagnostics,omitempty"`
	Proposal   *ProposalHandle `json:"proposal,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// FetchFailures counts origins that reported an error.
func (s RunSummary) FetchFailures() int {
	n := 0
	for _, o := range s.Origins {
		if o.Error != "" {
			n++
		}
	}
	return n
}
