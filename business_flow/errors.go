// Package businessflow contains the core business logic for the call engine
package businessflow

import (
	"errors"
)

// Business flow error constants
var (
	// Call-related errors
	ErrCallNotFound      = errors.New("call not found")
	ErrInvalidCallStatus = errors.New("invalid call status")

	// Campaign-related errors
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrCampaignNotActive = errors.New("campaign is not active")
	ErrNoPendingContacts = errors.New("campaign has no pending contacts")

	// Dispatch errors
	ErrPhoneNumberResolution = errors.New("failed to resolve provider phone number")
	ErrContactNotFound       = errors.New("contact not found")

	// Reconciliation errors
	ErrSweepInProgress = errors.New("a reconciliation sweep is already running")

	// Webhook errors
	ErrEventMissingCallID = errors.New("event carries no provider call id")
	ErrUnknownEventType   = errors.New("unknown webhook event type")
)

func IsCallNotFound(err error) bool {
	return errors.Is(err, ErrCallNotFound)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignNotActive(err error) bool {
	return errors.Is(err, ErrCampaignNotActive)
}

func IsNoPendingContacts(err error) bool {
	return errors.Is(err, ErrNoPendingContacts)
}

func IsPhoneNumberResolution(err error) bool {
	return errors.Is(err, ErrPhoneNumberResolution)
}

func IsSweepInProgress(err error) bool {
	return errors.Is(err, ErrSweepInProgress)
}

func IsEventMissingCallID(err error) bool {
	return errors.Is(err, ErrEventMissingCallID)
}
