// Package conformance runs the matcher against a directory of published
// pact specification test cases.
package conformance

import (
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
)

// TestCase is the on-disk form of a single case.
type TestCase struct {
	Match    bool            `json:"match"`
	Comment  string          `json:"comment"`
	Expected json.RawMessage `json:"expected"`
	Actual   json.RawMessage `json:"actual"`
}

type Case struct {
	Name string
	Kind Kind
	TestCase
}

// Outcome reports whether the matcher agreed with a case. Err is set when the
// case could not be evaluated at all.
type Outcome struct {
	Case   Case
	Passed bool
	Result *mockservice.ComparisonResult
	Err    error
}

// Load reads every request/**/*.json and response/**/*.json file under fsys,
// sorted by name.
func Load(fsys fs.FS) ([]Case, error) {
	var cases []Case
	for _, kind := range []Kind{KindRequest, KindResponse} {
		matches, err := doublestar.Glob(fsys, string(kind)+"/**/*.json")
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list %s test cases", kind)
		}
		sort.Strings(matches)

		for _, name := range matches {
			data, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to read test case %s", name)
			}
			var tc TestCase
			if err := json.Unmarshal(data, &tc); err != nil {
				return nil, errors.Wrapf(err, "unable to parse test case %s", name)
			}
			cases = append(cases, Case{
				Name:     strings.TrimSuffix(name, path.Ext(name)),
				Kind:     kind,
				TestCase: tc,
			})
		}
	}
	return cases, nil
}

type Runner struct {
	matcher *mockservice.Matcher
	log     log.FieldLogger
}

func NewRunner(matcher *mockservice.Matcher, logger log.FieldLogger) *Runner {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Runner{matcher: matcher, log: logger}
}

func (r *Runner) Run(cases []Case) []Outcome {
	outcomes := make([]Outcome, 0, len(cases))
	for _, c := range cases {
		outcome := r.run(c)
		entry := r.log.WithField("case", c.Name)
		switch {
		case outcome.Err != nil:
			entry.WithError(outcome.Err).Error("unable to evaluate test case")
		case !outcome.Passed:
			entry.Errorf("expected match=%t: %s", c.Match, c.Comment)
			entry.Debug(outcome.Result.String())
		default:
			entry.Debug("passed")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (r *Runner) run(c Case) Outcome {
	outcome := Outcome{Case: c}
	switch c.Kind {
	case KindRequest:
		var expected, actual mockservice.Request
		if outcome.Err = decode(c, &expected, &actual); outcome.Err != nil {
			return outcome
		}
		outcome.Result = r.matcher.CompareRequest(&expected, &actual)
	case KindResponse:
		var expected, actual mockservice.Response
		if outcome.Err = decode(c, &expected, &actual); outcome.Err != nil {
			return outcome
		}
		outcome.Result = r.matcher.CompareResponse(&expected, &actual)
	default:
		outcome.Err = errors.Errorf("unknown test case kind '%s'", c.Kind)
		return outcome
	}

	outcome.Passed = outcome.Result.HasFailure() != c.Match
	return outcome
}

func decode(c Case, expected, actual interface{}) error {
	if err := json.Unmarshal(c.Expected, expected); err != nil {
		return errors.Wrap(err, "unable to parse expected")
	}
	if err := json.Unmarshal(c.Actual, actual); err != nil {
		return errors.Wrap(err, "unable to parse actual")
	}
	return nil
}

// Failed returns the outcomes that did not pass.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.Passed {
			failed = append(failed, o)
		}
	}
	return failed
}
