package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for operator access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Call engine constants
const (
	// ShortCallThresholdSeconds is the duration below which a call is treated
	// as effectively unanswered regardless of reported outcome
	ShortCallThresholdSeconds = 15

	// StuckCallCutoff is how long a call may sit in a non-terminal state
	// before the reconciliation sweep picks it up
	StuckCallCutoff = 10 * time.Minute

	// InboundLinkLookback bounds how far back an inbound call searches for the
	// outbound call that prompted the callback
	InboundLinkLookback = 30 * 24 * time.Hour

	// DefaultMaxConcurrent is the campaign concurrency used when a campaign
	// does not set its own limit
	DefaultMaxConcurrent = 10

	// DefaultChunkDelay is the pause between dispatch chunks
	DefaultChunkDelay = 2 * time.Second
)
