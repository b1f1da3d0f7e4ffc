package dto

import "time"

// CallDTO is the operator-facing view of a call record
type CallDTO struct {
	UUID        string     `json:"uuid"`
	VapiCallID  *string    `json:"vapi_call_id,omitempty"`
	Direction   string     `json:"direction"`
	PhoneNumber string     `json:"phone_number"`
	Status      string     `json:"status"`
	Outcome     *string    `json:"outcome,omitempty"`
	Result      *string    `json:"result,omitempty"`
	EndedReason *string    `json:"ended_reason,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	Cost        *float64   `json:"cost,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// SyncSweepResponse reports the result of one reconciliation sweep
type SyncSweepResponse struct {
	Checked int `json:"checked"`
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// SyncCallResponse reports the result of force-syncing one call
type SyncCallResponse struct {
	UUID    string `json:"uuid"`
	Synced  bool   `json:"synced"`
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}

// DispatchCampaignRequest starts batch dispatch for a campaign
type DispatchCampaignRequest struct {
	// Limit optionally caps how many pending contacts are dispatched in this run
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=10000"`
}

// DispatchContactResult is the per-contact outcome of one dispatch attempt
type DispatchContactResult struct {
	ContactID   uint   `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
	CallUUID    string `json:"call_uuid"`
	Dispatched  bool   `json:"dispatched"`
	Error       string `json:"error,omitempty"`
}

// DispatchCampaignResponse summarizes a batch dispatch run
type DispatchCampaignResponse struct {
	CampaignUUID string                  `json:"campaign_uuid"`
	Total        int                     `json:"total"`
	Dispatched   int                     `json:"dispatched"`
	Failed       int                     `json:"failed"`
	Chunks       int                     `json:"chunks"`
	Results      []DispatchContactResult `json:"results"`
}

// RealtimeEvent is pushed to connected clients on call/campaign changes
type RealtimeEvent struct {
	Type         string    `json:"type"`
	CallUUID     string    `json:"call_uuid,omitempty"`
	CampaignUUID string    `json:"campaign_uuid,omitempty"`
	Payload      any       `json:"payload,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Realtime event types
const (
	RealtimeCallStatusChanged       = "call-status-changed"
	RealtimeCampaignProgressChanged = "campaign-progress-changed"
	RealtimeTranscriptChunk         = "transcript-chunk"
	RealtimeCallCompleted           = "call-completed"
	RealtimeAnalyticsReady          = "analytics-ready"
)
