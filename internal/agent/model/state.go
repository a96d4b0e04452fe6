package model

import (
	"github.com/cloudwego/eino/schema"
)

// ThreadState is the per-thread state persisted between turns. It is the
// serialization point for a conversation: a new turn must observe the
// committed state of the previous one, and commits are all-or-nothing
// together with the turn's messages.
type ThreadState struct {
	// Last classified category; restored when the user answers a pending
	// clarification so the interrupted flow can resume.
	Category Category `json:"category,omitempty"`

	// Clarification loop bookkeeping.
	ClarificationAttempts int               `json:"clarification_attempts"`
	AwaitingClarification bool              `json:"awaiting_clarification"`
	ClarificationType     ClarificationType `json:"clarification_type,omitempty"`

	// Slots carried across clarification turns.
	ExtractedAddress  string `json:"extracted_address,omitempty"`
	ExtractedDistrict string `json:"extracted_district,omitempty"`

	// Candidates shown to the user on the previous turn, awaiting a pick.
	PendingCandidates []AddressCandidate `json:"pending_candidates,omitempty"`
}

// TurnState is the per-turn working state, derived fresh each turn from the
// persisted thread plus the new message. Exactly one category is set per
// turn once classification ran; toxic turns never reach classification and
// leave it empty.
type TurnState struct {
	Category           Category
	CategoryConfidence float64

	SlotsComplete     bool
	MissingParams     []string
	ExtractedAddress  string
	ExtractedDistrict string

	AddressValidated       bool
	AddressCandidates      []AddressCandidate
	SelectedCandidateIndex int // 0-based; -1 until the user picked
	ValidatedBuildingID    int64
	ValidatedLat           float64
	ValidatedLon           float64

	AwaitingClarification bool
	ClarificationQuestion string
	ClarificationType     ClarificationType

	// Set when the query is a bare ordinal answering a pending candidate
	// list; classification and geocoding are skipped on such turns.
	ResumedCandidate bool

	ToolOutputs     []ToolOutput
	FallbackContext string
	FinalResponse   string

	// Diagnostic breadcrumbs (classification method, failure reasons).
	// Never rendered to the user.
	Metadata map[string]string
}

// Turn is the unit of work that flows through the orchestrator graph.
type Turn struct {
	ThreadID string
	Query    string
	History  []*schema.Message

	Thread ThreadState
	State  TurnState
}

// NewTurn derives a fresh turn from persisted thread state and history.
func NewTurn(threadID, query string, thread ThreadState, history []*schema.Message) *Turn {
	return &Turn{
		ThreadID: threadID,
		Query:    query,
		History:  history,
		Thread:   thread,
		State: TurnState{
			SelectedCandidateIndex: -1,
			Metadata:               map[string]string{},
		},
	}
}

// SetMeta records a diagnostic breadcrumb on the turn.
func (t *Turn) SetMeta(key, value string) {
	if t.State.Metadata == nil {
		t.State.Metadata = map[string]string{}
	}
	t.State.Metadata[key] = value
}

// AddressForTools returns the best known address for tool context:
// the selected candidate, a unique validated candidate, then the raw
// extracted address.
func (t *Turn) AddressForTools() string {
	cands := t.State.AddressCandidates
	if i := t.State.SelectedCandidateIndex; i >= 0 && i < len(cands) {
		return cands[i].FullAddress
	}
	if len(cands) == 1 {
		return cands[0].FullAddress
	}
	if t.State.ExtractedAddress != "" {
		return t.State.ExtractedAddress
	}
	return t.Thread.ExtractedAddress
}

// DistrictForTools returns the district slot, falling back to the value
// carried in the persisted thread state.
func (t *Turn) DistrictForTools() string {
	if t.State.ExtractedDistrict != "" {
		return t.State.ExtractedDistrict
	}
	return t.Thread.ExtractedDistrict
}

// AppState is the Eino graph-local state for one invocation. All access
// happens inside Eino state handlers (pre/post handlers and ProcessState),
// which Eino serializes, so no extra locking is needed.
type AppState struct {
	ThreadID string

	// Accumulated LLM cost (USD) across model calls for this turn.
	TotalCostUSD float64
}

// QueryInput is the public input for one conversational turn.
type QueryInput struct {
	ThreadID string `json:"thread_id"`
	Query    string `json:"query"`
}

// TurnResult is what the transport layer receives for a turn.
type TurnResult struct {
	ResponseText          string   `json:"response_text"`
	Category              Category `json:"category,omitempty"`
	AwaitingClarification bool     `json:"awaiting_clarification"`
}
