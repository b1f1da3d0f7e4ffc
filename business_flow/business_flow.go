// Package businessflow contains the business logic for the application.
package businessflow

import (
	"github.com/google/uuid"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/models"
)

const RequestIDKey = "X-Request-ID"

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// ToCallDTO converts a call record to its operator-facing representation
func ToCallDTO(call *models.Call) *dto.CallDTO {
	if call == nil {
		return nil
	}

	out := &dto.CallDTO{
		UUID:        call.UUID.String(),
		VapiCallID:  call.VapiCallID,
		Direction:   string(call.Direction),
		PhoneNumber: call.PhoneNumber,
		Status:      string(call.Status),
		EndedReason: call.EndedReason,
		Duration:    call.Duration,
		Cost:        call.Cost,
		CreatedAt:   call.CreatedAt,
		StartedAt:   call.StartedAt,
		AnsweredAt:  call.AnsweredAt,
		EndedAt:     call.EndedAt,
	}
	if call.Outcome != nil {
		s := string(*call.Outcome)
		out.Outcome = &s
	}
	if call.Result != nil {
		s := string(*call.Result)
		out.Result = &s
	}
	return out
}
