package model

// Structured results decoded from LLM calls and the geocoding collaborator.
// Every LLM response is decoded strictly against one of these shapes right
// after the call; on decode failure the calling node substitutes its fixed
// fallback value instead of propagating the error.

// CategoryClassification is the classifier's structured output.
type CategoryClassification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SlotsCheck is the slot checker's structured output.
type SlotsCheck struct {
	IsClear               bool     `json:"is_clear"`
	MissingParams         []string `json:"missing_params"`
	ExtractedAddress      string   `json:"extracted_address,omitempty"`
	ExtractedDistrict     string   `json:"extracted_district,omitempty"`
	ClarificationQuestion string   `json:"clarification_question,omitempty"`
}

// AddressCandidate is one resolved building returned by the geocoder.
type AddressCandidate struct {
	FullAddress string  `json:"full_address"`
	BuildingID  int64   `json:"building_id,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
}

// AddressValidation is the validator's outcome. Exactly one of the three
// states holds: valid, ambiguous, or not found (ErrorMessage set).
type AddressValidation struct {
	IsValid          bool
	IsAmbiguous      bool
	ValidatedAddress string
	BuildingID       int64
	Candidates       []AddressCandidate
	ErrorMessage     string
}

// ToolOutput records one tool invocation inside a turn.
type ToolOutput struct {
	ToolName string `json:"tool_name"`
	Output   string `json:"output"`
	Success  bool   `json:"success"`
}

// ClarificationType tags what kind of answer the pending clarification
// question expects, so the next turn can be interpreted correctly.
type ClarificationType string

const (
	ClarificationNone       ClarificationType = ""
	ClarificationMissing    ClarificationType = "missing_params"
	ClarificationCandidates ClarificationType = "address_candidates"
	ClarificationOther      ClarificationType = "other"
)
