package dto

import "time"

// WebhookEventType discriminates the provider's webhook messages. The ingestor
// switches exhaustively over these values; unknown types are logged and
// acknowledged without processing.
type WebhookEventType string

const (
	EventStatusUpdate       WebhookEventType = "status-update"
	EventConversationUpdate WebhookEventType = "conversation-update"
	EventSpeechUpdate       WebhookEventType = "speech-update"
	EventTranscript         WebhookEventType = "transcript"
	EventHang               WebhookEventType = "hang"
	EventEndOfCallReport    WebhookEventType = "end-of-call-report"
	EventAssistantRequest   WebhookEventType = "assistant-request"
	EventUnknown            WebhookEventType = ""
)

// WebhookEnvelope is the provider's push payload: a single message per call
type WebhookEnvelope struct {
	Message WebhookMessage `json:"message"`
}

// WebhookMessage is the union of all event payload shapes, keyed by Type.
// Only the fields relevant to the given type are populated by the provider.
type WebhookMessage struct {
	Type string    `json:"type"`
	Call *VapiCall `json:"call,omitempty"`

	// status-update
	Status      string `json:"status,omitempty"`
	EndedReason string `json:"endedReason,omitempty"`

	// transcript / speech-update
	Role           string `json:"role,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	TranscriptType string `json:"transcriptType,omitempty"`

	// end-of-call-report
	Artifact        *VapiArtifact `json:"artifact,omitempty"`
	Analysis        *VapiAnalysis `json:"analysis,omitempty"`
	DurationSeconds *float64      `json:"durationSeconds,omitempty"`
	Cost            *float64      `json:"cost,omitempty"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`

	// assistant-request
	Customer *VapiCustomer `json:"customer,omitempty"`

	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// EventType returns the typed discriminator for the message
func (m *WebhookMessage) EventType() WebhookEventType {
	switch WebhookEventType(m.Type) {
	case EventStatusUpdate, EventConversationUpdate, EventSpeechUpdate,
		EventTranscript, EventHang, EventEndOfCallReport, EventAssistantRequest:
		return WebhookEventType(m.Type)
	default:
		return EventUnknown
	}
}

// VapiCallID returns the provider call id carried by the message, if any
func (m *WebhookMessage) VapiCallID() string {
	if m.Call == nil {
		return ""
	}
	return m.Call.ID
}

// WebhookAckResponse is the always-success acknowledgement returned to the
// provider. Processing failures are recorded in the error field but never as a
// non-2xx status, which would trigger provider-side retry storms.
type WebhookAckResponse struct {
	Received bool   `json:"received"`
	Error    string `json:"error,omitempty"`
}

// AssistantSelectionResponse answers the synchronous assistant-request event
type AssistantSelectionResponse struct {
	Assistant *VapiAssistant `json:"assistant,omitempty"`
	// AssistantID may be returned instead of an inline assistant definition
	AssistantID string `json:"assistantId,omitempty"`
	Error       string `json:"error,omitempty"`
}
