package mockservice

import (
	"fmt"
	"strings"
)

// Failure is a leaf of a ComparisonResult.
type Failure interface {
	Result() string
}

type DiffFailure struct {
	Path     string
	Expected string
	Actual   string
}

func (f DiffFailure) Result() string {
	if f.Path != "" {
		return fmt.Sprintf("Expected %s at %s, Actual: %s", f.Expected, f.Path, f.Actual)
	}
	return fmt.Sprintf("Expected: %s, Actual: %s", f.Expected, f.Actual)
}

type MissingInteractionFailure struct {
	Interaction *Interaction
}

// RequestDescription identifies the missing request by method and path.
func (f MissingInteractionFailure) RequestDescription() string {
	return f.Interaction.Request.Description()
}

func (f MissingInteractionFailure) Result() string {
	return fmt.Sprintf("The interaction with description '%s' and provider state '%s', was not used by the test. Missing request %s.",
		f.Interaction.Description, f.Interaction.ProviderState, f.RequestDescription())
}

type UnexpectedRequestFailure struct {
	Request *Request
}

func (f UnexpectedRequestFailure) RequestDescription() string {
	return f.Request.Description()
}

func (f UnexpectedRequestFailure) Result() string {
	return fmt.Sprintf("An unexpected request %s was seen by the mock provider service.", f.RequestDescription())
}

type MessageFailure struct {
	Text string
}

func (f MessageFailure) Result() string {
	return f.Text
}

// ComparisonResult is a labelled node in the comparison tree. It passes iff
// neither it nor any descendant holds a failure.
type ComparisonResult struct {
	Message  string
	failures []Failure
	children []*ComparisonResult
}

func NewComparisonResult(format string, args ...interface{}) *ComparisonResult {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	return &ComparisonResult{Message: format}
}

func (r *ComparisonResult) RecordFailure(f Failure) {
	r.failures = append(r.failures, f)
}

func (r *ComparisonResult) AddChild(child *ComparisonResult) {
	if child == nil {
		return
	}
	r.children = append(r.children, child)
}

func (r *ComparisonResult) Children() []*ComparisonResult {
	return r.children
}

// Failures returns every failure in the tree, depth first.
func (r *ComparisonResult) Failures() []Failure {
	failures := append([]Failure(nil), r.failures...)
	for _, c := range r.children {
		failures = append(failures, c.Failures()...)
	}
	return failures
}

func (r *ComparisonResult) HasFailure() bool {
	if len(r.failures) > 0 {
		return true
	}
	for _, c := range r.children {
		if c.HasFailure() {
			return true
		}
	}
	return false
}

func (r *ComparisonResult) FailureCount() int {
	return len(r.Failures())
}

// String renders the tree, one node per line, failures marked with [x].
func (r *ComparisonResult) String() string {
	var sb strings.Builder
	r.render(&sb, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func (r *ComparisonResult) render(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	if r.Message != "" {
		mark := "[ok]"
		if r.HasFailure() {
			mark = "[x]"
		}
		fmt.Fprintf(sb, "%s%s %s\n", indent, mark, r.Message)
		depth++
		indent += "  "
	}
	for _, f := range r.failures {
		fmt.Fprintf(sb, "%s- %s\n", indent, f.Result())
	}
	for _, c := range r.children {
		c.render(sb, depth)
	}
}
