package mockservice

import (
	"fmt"
	"mime"
	"regexp"
	"sort"
	"strings"
)

type MatcherOptions struct {
	// QueryOrderInsensitive compares query parameters per key, ignoring the
	// order in which different keys appear. The default is the strict,
	// declared-order comparison.
	QueryOrderInsensitive bool
}

// Matcher compares expected requests and responses against actual ones. It
// holds no state besides its options and is safe for concurrent use.
type Matcher struct {
	options MatcherOptions
}

func NewMatcher(options MatcherOptions) *Matcher {
	return &Matcher{options: options}
}

func (m *Matcher) CompareRequest(expected, actual *Request) *ComparisonResult {
	result := NewComparisonResult("returns a request matching %s", expected.Description())
	if actual == nil {
		result.RecordFailure(DiffFailure{Expected: expected.Description(), Actual: "<none>"})
		return result
	}

	result.AddChild(compareMethod(expected.Method, actual.Method))
	result.AddChild(comparePath(expected, actual))
	result.AddChild(m.compareQuery(expected.Query, actual.Query))

	if len(expected.Headers) > 0 {
		result.AddChild(compareHeaders(expected.Headers, actual.Headers, expected.Body == nil && actual.Body == nil))
	}
	if expected.Body != nil {
		result.AddChild(compareBody(expected.Body, actual.Body, expected.MatchingRules))
	}
	return result
}

func (m *Matcher) CompareResponse(expected, actual *Response) *ComparisonResult {
	result := NewComparisonResult("returns a response with status %d", expected.Status)
	if actual == nil {
		result.RecordFailure(DiffFailure{Expected: fmt.Sprintf("status %d", expected.Status), Actual: "<none>"})
		return result
	}

	status := NewComparisonResult("has status code %d", expected.Status)
	if expected.Status != actual.Status {
		status.RecordFailure(DiffFailure{Expected: fmt.Sprint(expected.Status), Actual: fmt.Sprint(actual.Status)})
	}
	result.AddChild(status)

	if len(expected.Headers) > 0 {
		result.AddChild(compareHeaders(expected.Headers, actual.Headers, expected.Body == nil && actual.Body == nil))
	}
	if expected.Body != nil {
		result.AddChild(compareBody(expected.Body, actual.Body, expected.MatchingRules))
	}
	return result
}

func compareMethod(expected, actual HTTPVerb) *ComparisonResult {
	result := NewComparisonResult("has method %s", expected)
	if !strings.EqualFold(string(expected), string(actual)) {
		result.RecordFailure(DiffFailure{Expected: string(expected), Actual: string(actual)})
	}
	return result
}

func comparePath(expected, actual *Request) *ComparisonResult {
	result := NewComparisonResult("has path %s", expected.Path)
	if rules := expected.MatchingRules; rules != nil && rules.Path != nil && rules.Path.kind() == matchRegex {
		re, err := regexp.Compile("^" + rules.Path.Regex + "$")
		if err != nil {
			result.RecordFailure(MessageFailure{Text: fmt.Sprintf("cannot parse path regex rule '%s': %s", rules.Path.Regex, err)})
			return result
		}
		if !re.MatchString(actual.Path) {
			result.RecordFailure(DiffFailure{Expected: "path matching /" + rules.Path.Regex + "/", Actual: actual.Path})
		}
		return result
	}
	if expected.Path != actual.Path {
		result.RecordFailure(DiffFailure{Expected: expected.Path, Actual: actual.Path})
	}
	return result
}

func (m *Matcher) compareQuery(expected, actual string) *ComparisonResult {
	normalisedExpected := NormaliseQuery(expected)
	normalisedActual := NormaliseQuery(actual)
	if normalisedExpected == "" && normalisedActual == "" {
		return NewComparisonResult("has no query strings")
	}

	result := NewComparisonResult("has query %s", normalisedExpected)
	diff := DiffFailure{Expected: quoted(normalisedExpected), Actual: quoted(normalisedActual)}
	if normalisedExpected == "" || normalisedActual == "" {
		result.RecordFailure(diff)
		return result
	}

	expectedParams, errExpected := parseQuery(normalisedExpected)
	actualParams, errActual := parseQuery(normalisedActual)
	if errExpected != nil || errActual != nil {
		result.RecordFailure(diff)
		return result
	}

	if !sameKeys(expectedParams.keys, actualParams.keys, !m.options.QueryOrderInsensitive) {
		result.RecordFailure(diff)
		return result
	}

	for _, key := range expectedParams.keys {
		expectedValues := expectedParams.values[key]
		actualValues := actualParams.values[key]
		if !equalStrings(expectedValues, actualValues) {
			result.RecordFailure(DiffFailure{
				Path:     "$.query." + key,
				Expected: quoted(strings.Join(expectedValues, ",")),
				Actual:   quoted(strings.Join(actualValues, ",")),
			})
		}
	}
	return result
}

func sameKeys(expected, actual []string, ordered bool) bool {
	if len(expected) != len(actual) {
		return false
	}
	if ordered {
		return equalStrings(expected, actual)
	}
	e := append([]string(nil), expected...)
	a := append([]string(nil), actual...)
	sort.Strings(e)
	sort.Strings(a)
	return equalStrings(e, a)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// compareHeaders only checks the headers that are expected.
func compareHeaders(expected, actual map[string]string, noBody bool) *ComparisonResult {
	result := NewComparisonResult("includes headers")

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		expectedValue := expected[name]
		child := NewComparisonResult("includes header '%s' with value '%s'", name, expectedValue)
		result.AddChild(child)

		if noBody && strings.EqualFold(name, "Content-Length") {
			continue
		}

		actualValue, ok := HeaderValue(actual, name)
		if !ok {
			child.RecordFailure(DiffFailure{Path: "$.headers." + name, Expected: quoted(expectedValue), Actual: "<missing>"})
			continue
		}
		if !headerValuesEqual(name, expectedValue, actualValue) {
			child.RecordFailure(DiffFailure{
				Path:     "$.headers." + name,
				Expected: quoted(NormaliseHeaderValue(expectedValue)),
				Actual:   quoted(NormaliseHeaderValue(actualValue)),
			})
		}
	}
	return result
}

// headerValuesEqual compares normalised values. A Content-Type declared
// without parameters matches any parameters on the actual value.
func headerValuesEqual(name, expected, actual string) bool {
	if NormaliseHeaderValue(expected) == NormaliseHeaderValue(actual) {
		return true
	}
	if !strings.EqualFold(name, "Content-Type") {
		return false
	}
	expectedType, expectedParams, err := mime.ParseMediaType(expected)
	if err != nil || len(expectedParams) > 0 {
		return false
	}
	actualType, _, err := mime.ParseMediaType(actual)
	return err == nil && expectedType == actualType
}

func quoted(s string) string {
	return "'" + s + "'"
}
