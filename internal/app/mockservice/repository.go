package mockservice

import (
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type State int

const (
	StateEmpty State = iota
	StateRegistering
	StateServing
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateRegistering:
		return "registering"
	case StateServing:
		return "serving"
	case StateVerified:
		return "verified"
	}
	return "unknown"
}

// NoMatchingInteractionError is returned when no registered interaction
// matches a request. Closest is the candidate with the fewest failures.
type NoMatchingInteractionError struct {
	Request    *Request
	Closest    *Interaction
	Comparison *ComparisonResult
}

func (e *NoMatchingInteractionError) Error() string {
	if e.Closest == nil {
		return fmt.Sprintf("No interaction found for %s. No interactions are registered.", e.Request.Description())
	}
	return fmt.Sprintf("No interaction found for %s. Closest interaction is '%s':\n%s",
		e.Request.Description(), e.Closest.Description, e.Comparison)
}

// Repository holds the interactions registered for the current test and the
// traffic observed since the last clear. All access is serialised by mu.
type Repository struct {
	mu          sync.Mutex
	matcher     *Matcher
	log         log.FieldLogger
	notify      *notify
	state       State
	satisfied   bool
	testContext string

	interactions []*Interaction
	handled      []*HandledRequest
	contract     []*Interaction
}

func NewRepository(matcher *Matcher, logger log.FieldLogger) *Repository {
	if matcher == nil {
		matcher = NewMatcher(MatcherOptions{})
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Repository{
		matcher: matcher,
		log:     logger,
		notify:  newNotify(),
	}
}

// AddInteraction appends to the registered set. Equal interactions are
// added again rather than replaced.
func (r *Repository) AddInteraction(i *Interaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.interactions = append(r.interactions, i)
	switch r.state {
	case StateEmpty:
		r.state = StateRegistering
	case StateVerified:
		r.log.Warnf("interaction '%s' registered after verification, clear the interactions first", i.Description)
	}
}

// GetMatchingInteraction returns the first registered interaction, in
// registration order, whose request matches actual.
func (r *Repository) GetMatchingInteraction(actual *Request) (*Interaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.match(actual)
}

func (r *Repository) match(actual *Request) (*Interaction, error) {
	noMatch := &NoMatchingInteractionError{Request: actual}
	fewest := -1
	for _, i := range r.interactions {
		result := r.matcher.CompareRequest(i.Request, actual)
		failures := result.FailureCount()
		if failures == 0 {
			return i, nil
		}
		if fewest < 0 || failures < fewest {
			fewest = failures
			noMatch.Closest = i
			noMatch.Comparison = result
		}
	}
	return nil, noMatch
}

// AddHandledRequest appends to the handled list. It never fails.
func (r *Repository) AddHandledRequest(h *HandledRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addHandled(h)
}

func (r *Repository) addHandled(h *HandledRequest) {
	r.handled = append(r.handled, h)
	if r.state == StateVerified {
		r.log.Warnf("request %s handled after verification", h.Actual.Description())
		return
	}
	r.state = StateServing
}

// HandleRequest looks up the interaction for actual and records the attempt
// as one atomic step. The attempt is recorded even when nothing matches.
func (r *Repository) HandleRequest(id string, actual *Request) (*Interaction, error) {
	r.mu.Lock()
	interaction, err := r.match(actual)
	r.addHandled(&HandledRequest{ID: id, Actual: actual, MatchedInteraction: interaction})
	r.mu.Unlock()

	if err == nil {
		r.notify.Notify()
	}
	return interaction, err
}

// ClearTestScopedState empties the registered interactions and the handled
// requests together. The contract set is kept.
func (r *Repository) ClearTestScopedState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interactions = nil
	r.handled = nil
	r.state = StateEmpty
	r.satisfied = false
	r.testContext = ""
}

func (r *Repository) Interactions() []*Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Interaction(nil), r.interactions...)
}

func (r *Repository) HandledRequests() []*HandledRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*HandledRequest(nil), r.handled...)
}

// ContractInteractions returns the interactions verified so far, in
// registration order, for the lifetime of the repository.
func (r *Repository) ContractInteractions() []*Interaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Interaction(nil), r.contract...)
}

// State returns the current state and, once verified, whether the
// verification was satisfied.
func (r *Repository) State() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.satisfied
}

// SetTestContext records the name of the running test once per scope and
// reports whether it was set.
func (r *Repository) SetTestContext(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.testContext != "" || name == "" {
		return false
	}
	r.testContext = name
	return true
}

// AllHaveRequests reports whether every registered interaction was matched
// at least count times.
func (r *Repository) AllHaveRequests(count int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.interactions {
		if r.usages(i) < count {
			return false
		}
	}
	return true
}

func (r *Repository) usages(i *Interaction) int {
	n := 0
	for _, h := range r.handled {
		if h.MatchedInteraction == i {
			n++
		}
	}
	return n
}

// Verify checks the observed traffic against the registered interactions.
// On success the interactions join the contract set. The returned error is
// a *VerificationError when anything failed.
func (r *Repository) Verify() (*ComparisonResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := VerifyInteractions(r.interactions, r.handled)
	if !result.HasFailure() {
		r.checkContractConflicts(result)
	}

	r.state = StateVerified
	r.satisfied = !result.HasFailure()
	if !r.satisfied {
		return result, &VerificationError{Result: result}
	}

	r.promote()
	return result, nil
}

func (r *Repository) checkContractConflicts(result *ComparisonResult) {
	for _, i := range r.interactions {
		for _, existing := range r.contract {
			if existing.Key() == i.Key() && !sameDefinition(existing, i) {
				result.RecordFailure(MessageFailure{Text: fmt.Sprintf(
					"An interaction with description '%s' and provider state '%s' was already verified with a different definition.",
					i.Description, i.ProviderState)})
			}
		}
	}
}

func (r *Repository) promote() {
	for _, i := range r.interactions {
		known := false
		for _, existing := range r.contract {
			if existing.Key() == i.Key() {
				known = true
				break
			}
		}
		if !known {
			r.contract = append(r.contract, i)
		}
	}
}

func sameDefinition(a, b *Interaction) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
