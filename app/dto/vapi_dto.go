package dto

import (
	"encoding/json"
	"time"
)

// Provider call objects shared between the webhook envelope and the REST client.
// Field names follow the provider's wire format.

// VapiCustomer is the remote party of a call
type VapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// VapiCall is the provider's view of one call
type VapiCall struct {
	ID            string         `json:"id"`
	OrgID         string         `json:"orgId,omitempty"`
	Type          string         `json:"type,omitempty"` // inboundPhoneCall, outboundPhoneCall, webCall
	Status        string         `json:"status,omitempty"`
	EndedReason   string         `json:"endedReason,omitempty"`
	AssistantID   string         `json:"assistantId,omitempty"`
	PhoneNumberID string         `json:"phoneNumberId,omitempty"`
	Customer      *VapiCustomer  `json:"customer,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Cost          *float64       `json:"cost,omitempty"`
	CreatedAt     *time.Time     `json:"createdAt,omitempty"`
	StartedAt     *time.Time     `json:"startedAt,omitempty"`
	EndedAt       *time.Time     `json:"endedAt,omitempty"`
	Artifact      *VapiArtifact  `json:"artifact,omitempty"`
	Analysis      *VapiAnalysis  `json:"analysis,omitempty"`
}

// IsInbound reports whether the provider marked the call inbound
func (c *VapiCall) IsInbound() bool {
	return c.Type == "inboundPhoneCall"
}

// CustomerNumber returns the remote party number, empty when unknown
func (c *VapiCall) CustomerNumber() string {
	if c.Customer == nil {
		return ""
	}
	return c.Customer.Number
}

// LocalCallUUID extracts the correlation UUID we attached at dispatch time
func (c *VapiCall) LocalCallUUID() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata["localCallId"].(string); ok {
		return v
	}
	return ""
}

// VapiMessage is one conversation turn inside a call artifact
type VapiMessage struct {
	Role             string  `json:"role"`
	Message          string  `json:"message"`
	SecondsFromStart float64 `json:"secondsFromStart"`
}

// VapiArtifact carries the recorded conversation of a finished call
type VapiArtifact struct {
	Transcript        string        `json:"transcript,omitempty"`
	Messages          []VapiMessage `json:"messages,omitempty"`
	RecordingURL      string        `json:"recordingUrl,omitempty"`
	RecordingDuration *float64      `json:"recordingDuration,omitempty"`
}

// VapiAnalysis is the provider's post-call analysis
type VapiAnalysis struct {
	Summary           string          `json:"summary,omitempty"`
	SuccessEvaluation string          `json:"successEvaluation,omitempty"`
	StructuredData    json.RawMessage `json:"structuredData,omitempty"`
}

// StructuredAnalysis is the machine-extracted outcome block inside the analysis
type StructuredAnalysis struct {
	Outcome           string   `json:"outcome,omitempty"`
	Sentiment         string   `json:"sentiment,omitempty"`
	InterestLevel     string   `json:"interestLevel,omitempty"`
	AppointmentBooked bool     `json:"appointmentBooked,omitempty"`
	AppointmentDate   string   `json:"appointmentDate,omitempty"`
	AppointmentTime   string   `json:"appointmentTime,omitempty"`
	FollowUpNeeded    bool     `json:"followUpNeeded,omitempty"`
	FollowUpTopics    []string `json:"followUpTopics,omitempty"`
	ConfirmedName     string   `json:"confirmedName,omitempty"`
	ConfirmedPhone    string   `json:"confirmedPhone,omitempty"`
	ConfirmedEmail    string   `json:"confirmedEmail,omitempty"`
}

// ParseStructuredData decodes the structured block, returning nil when absent
// or malformed. Malformed structured data is a classification-ambiguity case,
// not an error: the classifier falls back to its other signals.
func (a *VapiAnalysis) ParseStructuredData() *StructuredAnalysis {
	if a == nil || len(a.StructuredData) == 0 {
		return nil
	}
	var s StructuredAnalysis
	if err := json.Unmarshal(a.StructuredData, &s); err != nil {
		return nil
	}
	return &s
}

// VapiAssistant is a provider assistant (call configuration)
type VapiAssistant struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	Model        map[string]any `json:"model,omitempty"`
	Voice        map[string]any `json:"voice,omitempty"`
	FirstMessage string         `json:"firstMessage,omitempty"`
}

// VapiPhoneNumber is a provider-owned line
type VapiPhoneNumber struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// CreateCallRequest is the payload for placing an outbound call
type CreateCallRequest struct {
	AssistantID   string         `json:"assistantId"`
	PhoneNumberID string         `json:"phoneNumberId"`
	Customer      VapiCustomer   `json:"customer"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
