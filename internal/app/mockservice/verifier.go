package mockservice

import (
	"fmt"
	"strings"
)

const noInteractionsRegistered = "No interactions were registered, however the mock provider service was called."

// VerificationError carries the full verification result. Its message is
// the first failure.
type VerificationError struct {
	Result *ComparisonResult
}

func (e *VerificationError) Error() string {
	failures := e.Result.Failures()
	if len(failures) == 0 {
		return "verification failed"
	}
	return failures[0].Result()
}

func (e *VerificationError) Failures() []Failure {
	return e.Result.Failures()
}

// MissingRequests lists the method and path of every interaction that was
// never used.
func (e *VerificationError) MissingRequests() []string {
	var missing []string
	for _, f := range e.Failures() {
		if m, ok := f.(MissingInteractionFailure); ok {
			missing = append(missing, m.RequestDescription())
		}
	}
	return missing
}

// UnexpectedRequests lists the method and path of every request that did not
// match an interaction.
func (e *VerificationError) UnexpectedRequests() []string {
	var unexpected []string
	for _, f := range e.Failures() {
		if u, ok := f.(UnexpectedRequestFailure); ok {
			unexpected = append(unexpected, u.RequestDescription())
		}
	}
	return unexpected
}

// VerifyInteractions checks that every registered interaction was used exactly
// once and that no request went unmatched. The outcome depends only on usage
// counts, not on which request index matched which interaction.
func VerifyInteractions(registered []*Interaction, handled []*HandledRequest) *ComparisonResult {
	result := NewComparisonResult("verifies %d interaction(s) against %d request(s)", len(registered), len(handled))

	for _, interaction := range registered {
		usages := 0
		for _, h := range handled {
			if h.MatchedInteraction != nil && h.MatchedInteraction == interaction {
				usages++
			}
		}

		switch {
		case usages == 0:
			result.RecordFailure(MissingInteractionFailure{Interaction: interaction})
		case usages > 1:
			result.RecordFailure(MessageFailure{Text: fmt.Sprintf(
				"The interaction with description '%s' and provider state '%s', was used %d time/s by the test.",
				interaction.Description, interaction.ProviderState, usages)})
		}
	}

	for _, h := range handled {
		if h.MatchedInteraction == nil {
			result.RecordFailure(UnexpectedRequestFailure{Request: h.Actual})
		}
	}

	if len(registered) == 0 && len(handled) > 0 {
		result.RecordFailure(MessageFailure{Text: noInteractionsRegistered})
	}
	return result
}

// summary renders the grouped failure lines that get logged on a failed
// verification.
func (e *VerificationError) summary() []string {
	var lines []string
	if missing := e.MissingRequests(); len(missing) > 0 {
		lines = append(lines, "Missing requests: "+strings.Join(missing, ", "))
	}
	if unexpected := e.UnexpectedRequests(); len(unexpected) > 0 {
		lines = append(lines, "Unexpected requests: "+strings.Join(unexpected, ", "))
	}
	for _, f := range e.Failures() {
		switch f.(type) {
		case MissingInteractionFailure, UnexpectedRequestFailure:
		default:
			lines = append(lines, f.Result())
		}
	}
	return lines
}
