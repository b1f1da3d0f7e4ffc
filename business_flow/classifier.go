// Package businessflow contains the core business logic and use cases for call outcome classification
package businessflow

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/simurgh-io/simurgh/app/dto"
	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
)

// ClassificationInput carries everything the classifier may consult: the
// terminal event's analysis block plus the call's own end signals.
type ClassificationInput struct {
	Summary           string
	SuccessEvaluation string
	Structured        *dto.StructuredAnalysis
	EndedReason       string
	Duration          *int
	TranscriptText    string
	// EndedAt anchors relative appointment expressions ("next Thursday")
	EndedAt time.Time
}

// Classification is the derived business outcome of a finished call
type Classification struct {
	Outcome models.CallOutcome
	Result  models.CallResult
	Summary string

	Sentiment     *string
	InterestLevel *string

	AppointmentBooked bool
	AppointmentDate   *string
	AppointmentTime   *string
	AppointmentAt     *time.Time

	FollowUpNeeded bool
	FollowUpTopics []string

	ConfirmedName  *string
	ConfirmedPhone *string
	ConfirmedEmail *string
	// ConfirmedFields names which identity fields the caller confirmed
	// verbally, for auditing which stored contact data was validated
	ConfirmedFields []string
}

// voicemailPhrases are transcript fragments that identify an answering machine
var voicemailPhrases = []string{
	"leave a message",
	"leave your name and number",
	"after the tone",
	"after the beep",
	"voicemail",
	"voice mail",
	"is not available right now",
	"please record your message",
}

var appointmentParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ClassifyOutcome maps a terminal call's signals to a business outcome and
// result flag. It is a pure function: ambiguity is resolved by precedence,
// never raised as an error, and every input produces some outcome.
//
// Precedence, highest first: explicit structured outcome, success evaluation,
// ended-reason keywords, voicemail detection, short-call override. A resolved
// appointment wins over all of them.
func ClassifyOutcome(in ClassificationInput) Classification {
	out := Classification{
		Outcome: models.CallOutcomePartial,
		Result:  models.CallResultInconclusive,
		Summary: in.Summary,
	}

	hasSuccessSignal := false

	if in.Structured != nil {
		applyStructuredFields(&out, in.Structured)
		if o, ok := parseStructuredOutcome(in.Structured.Outcome); ok {
			out.Outcome = o
			out.Result = resultForOutcome(o)
			hasSuccessSignal = o == models.CallOutcomeSuccess
		} else if ok := applySuccessEvaluation(&out, in.SuccessEvaluation); ok {
			hasSuccessSignal = out.Outcome == models.CallOutcomeSuccess
		} else {
			applyEndSignals(&out, in)
		}
	} else if ok := applySuccessEvaluation(&out, in.SuccessEvaluation); ok {
		hasSuccessSignal = out.Outcome == models.CallOutcomeSuccess
	} else {
		applyEndSignals(&out, in)
	}

	// Voicemail detection overrides anything short of an explicit success
	if !hasSuccessSignal && isVoicemail(in) {
		out.Outcome = models.CallOutcomeNoResponse
		out.Result = models.CallResultFail
	}

	// Very short calls are not a reliable signal of anything
	if !hasSuccessSignal && in.Duration != nil && *in.Duration < utils.ShortCallThresholdSeconds {
		out.Outcome = models.CallOutcomeNoResponse
		out.Result = models.CallResultInconclusive
	}

	// A resolved appointment is the strongest possible success signal
	resolveAppointment(&out, in.EndedAt)
	if out.AppointmentBooked && out.AppointmentAt != nil {
		out.Outcome = models.CallOutcomeSuccess
		out.Result = models.CallResultPass
	}

	return out
}

// applyStructuredFields copies the non-outcome structured data onto the
// classification. These fields survive regardless of which precedence branch
// decides the outcome.
func applyStructuredFields(out *Classification, s *dto.StructuredAnalysis) {
	if s.Sentiment != "" {
		out.Sentiment = utils.ToPtr(s.Sentiment)
	}
	if s.InterestLevel != "" {
		out.InterestLevel = utils.ToPtr(s.InterestLevel)
	}
	out.AppointmentBooked = s.AppointmentBooked
	if s.AppointmentDate != "" {
		out.AppointmentDate = utils.ToPtr(s.AppointmentDate)
	}
	if s.AppointmentTime != "" {
		out.AppointmentTime = utils.ToPtr(s.AppointmentTime)
	}
	out.FollowUpNeeded = s.FollowUpNeeded
	out.FollowUpTopics = s.FollowUpTopics
	if s.ConfirmedName != "" {
		out.ConfirmedName = utils.ToPtr(s.ConfirmedName)
		out.ConfirmedFields = append(out.ConfirmedFields, "name")
	}
	if s.ConfirmedPhone != "" {
		out.ConfirmedPhone = utils.ToPtr(s.ConfirmedPhone)
		out.ConfirmedFields = append(out.ConfirmedFields, "phone")
	}
	if s.ConfirmedEmail != "" {
		out.ConfirmedEmail = utils.ToPtr(s.ConfirmedEmail)
		out.ConfirmedFields = append(out.ConfirmedFields, "email")
	}
}

// parseStructuredOutcome normalizes the provider's free-form outcome string
// into the local enum
func parseStructuredOutcome(raw string) (models.CallOutcome, bool) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.ReplaceAll(norm, "_", "-")
	norm = strings.ReplaceAll(norm, " ", "-")

	switch norm {
	case "success", "successful":
		return models.CallOutcomeSuccess, true
	case "partial", "partial-success":
		return models.CallOutcomePartial, true
	case "no-response", "no-answer", "unanswered":
		return models.CallOutcomeNoResponse, true
	case "callback-requested", "callback", "call-back":
		return models.CallOutcomeCallbackRequested, true
	case "wrong-number":
		return models.CallOutcomeWrongNumber, true
	case "declined", "not-interested", "rejected":
		return models.CallOutcomeDeclined, true
	case "technical-failure", "failure", "error":
		return models.CallOutcomeTechnicalFailure, true
	default:
		return "", false
	}
}

// applySuccessEvaluation interprets the provider's success flag. The provider
// reports it as a stringified boolean or a rubric grade.
func applySuccessEvaluation(out *Classification, eval string) bool {
	switch strings.ToLower(strings.TrimSpace(eval)) {
	case "true", "pass", "success", "successful":
		out.Outcome = models.CallOutcomeSuccess
		out.Result = models.CallResultPass
		return true
	case "partial":
		out.Outcome = models.CallOutcomePartial
		out.Result = models.CallResultInconclusive
		return true
	case "false", "fail", "failed":
		out.Outcome = models.CallOutcomeDeclined
		out.Result = models.CallResultFail
		return true
	default:
		return false
	}
}

// applyEndSignals derives an outcome from the ended reason when no analysis
// signal is available
func applyEndSignals(out *Classification, in ClassificationInput) {
	reason := strings.ToLower(in.EndedReason)
	switch {
	case strings.Contains(reason, "no-answer"), strings.Contains(reason, "did-not-answer"),
		strings.Contains(reason, "busy"), strings.Contains(reason, "voicemail"):
		out.Outcome = models.CallOutcomeNoResponse
		out.Result = models.CallResultFail
	case strings.Contains(reason, "error"), strings.Contains(reason, "failed"):
		out.Outcome = models.CallOutcomeTechnicalFailure
		out.Result = models.CallResultFail
	default:
		out.Outcome = models.CallOutcomePartial
		out.Result = models.CallResultInconclusive
	}
}

// resultForOutcome maps an outcome to its default result flag
func resultForOutcome(o models.CallOutcome) models.CallResult {
	switch o {
	case models.CallOutcomeSuccess:
		return models.CallResultPass
	case models.CallOutcomePartial, models.CallOutcomeCallbackRequested:
		return models.CallResultInconclusive
	default:
		return models.CallResultFail
	}
}

// isVoicemail reports whether the call reached an answering machine, judged
// from the ended reason or known voicemail phrases in the transcript
func isVoicemail(in ClassificationInput) bool {
	if strings.Contains(strings.ToLower(in.EndedReason), "voicemail") {
		return true
	}
	transcript := strings.ToLower(in.TranscriptText)
	if transcript == "" {
		return false
	}
	for _, phrase := range voicemailPhrases {
		if strings.Contains(transcript, phrase) {
			return true
		}
	}
	return false
}

// resolveAppointment turns the natural-language appointment fields into an
// absolute timestamp relative to the call's end. Resolution failure keeps the
// raw strings and leaves AppointmentAt nil.
func resolveAppointment(out *Classification, endedAt time.Time) {
	if !out.AppointmentBooked {
		return
	}

	var parts []string
	if out.AppointmentDate != nil {
		parts = append(parts, *out.AppointmentDate)
	}
	if out.AppointmentTime != nil {
		parts = append(parts, *out.AppointmentTime)
	}
	phrase := strings.TrimSpace(strings.Join(parts, " "))
	if phrase == "" {
		return
	}

	base := endedAt
	if base.IsZero() {
		base = utils.UTCNow()
	}

	result, err := appointmentParser.Parse(phrase, base)
	if err != nil || result == nil {
		return
	}
	resolved := result.Time.UTC()
	out.AppointmentAt = &resolved
}
