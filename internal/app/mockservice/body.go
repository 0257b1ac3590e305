package mockservice

import (
	"bytes"
	"fmt"
	"regexp"
)

const missing = "<missing>"

func compareBody(expected, actual Value, rules *MatchingRules) *ComparisonResult {
	result := NewComparisonResult("has a matching body")
	w := &bodyWalker{rules: newRuleSet(rules), result: result}
	w.compare(bodyPath{}, expected, actual)
	return result
}

type bodyWalker struct {
	rules  *ruleSet
	result *ComparisonResult
}

func (w *bodyWalker) fail(p bodyPath, expected, actual string) {
	w.result.RecordFailure(DiffFailure{Path: p.String(), Expected: expected, Actual: actual})
}

func (w *bodyWalker) compare(p bodyPath, expected, actual Value) {
	if actual == nil {
		w.fail(p, Describe(expected), missing)
		return
	}

	rule, _, ok := w.rules.lookup(p)
	if ok {
		switch rule.kind() {
		case matchRegex:
			w.compareRegex(p, rule, actual)
			return
		case matchType:
			w.compareType(p, rule, expected, actual)
			return
		}
	}
	w.compareLiteral(p, expected, actual)
}

func (w *bodyWalker) compareRegex(p bodyPath, rule Rule, actual Value) {
	s, ok := Stringify(actual)
	if !ok {
		w.fail(p, fmt.Sprintf("a value matching /%s/", rule.Regex), Describe(actual))
		return
	}
	re, err := regexp.Compile(rule.Regex)
	if err != nil {
		w.result.RecordFailure(MessageFailure{Text: fmt.Sprintf("invalid regex rule '%s' at %s: %s", rule.Regex, p, err)})
		return
	}
	if !re.MatchString(s) {
		w.fail(p, fmt.Sprintf("a value matching /%s/", rule.Regex), Describe(actual))
	}
}

func (w *bodyWalker) compareType(p bodyPath, rule Rule, expected, actual Value) {
	if !sameKind(expected, actual) {
		w.fail(p, fmt.Sprintf("a value of type %s (like %s)", expected.Kind(), Describe(expected)), Describe(actual))
		return
	}

	switch e := expected.(type) {
	case *Object:
		a := actual.(*Object)
		for _, key := range e.Keys() {
			ev, _ := e.Get(key)
			av, present := a.Get(key)
			if !present {
				w.fail(p.field(key), Describe(ev), missing)
				continue
			}
			w.compare(p.field(key), ev, av)
		}
	case Array:
		a := actual.(Array)
		if rule.hasLength() {
			w.compareEach(p, rule, e, a)
			return
		}
		w.compareArray(p, e, a)
	}
}

// compareEach checks the length bounds and then holds every actual element
// against the first expected element.
func (w *bodyWalker) compareEach(p bodyPath, rule Rule, expected, actual Array) {
	if rule.Min != nil && len(actual) < *rule.Min {
		w.fail(p, fmt.Sprintf("an array with at least %d element(s)", *rule.Min), fmt.Sprintf("%d element(s)", len(actual)))
	}
	if rule.Max != nil && len(actual) > *rule.Max {
		w.fail(p, fmt.Sprintf("an array with at most %d element(s)", *rule.Max), fmt.Sprintf("%d element(s)", len(actual)))
	}
	if len(expected) == 0 {
		return
	}
	for i, av := range actual {
		w.compare(p.index(i), expected[0], av)
	}
}

func (w *bodyWalker) compareArray(p bodyPath, expected, actual Array) {
	if len(expected) == 0 && len(actual) > 0 {
		w.fail(p, "an empty array", Describe(actual))
		return
	}
	if len(actual) < len(expected) {
		w.fail(p, fmt.Sprintf("an array with at least %d element(s) like %s", len(expected), Describe(expected)), Describe(actual))
	}
	for i, ev := range expected {
		if i >= len(actual) {
			break
		}
		w.compare(p.index(i), ev, actual[i])
	}
}

func (w *bodyWalker) compareLiteral(p bodyPath, expected, actual Value) {
	switch e := expected.(type) {
	case *Object:
		a, ok := actual.(*Object)
		if !ok {
			w.fail(p, Describe(expected), Describe(actual))
			return
		}
		if e.Len() == 0 && a.Len() > 0 {
			w.fail(p, "an empty object", Describe(actual))
			return
		}
		for _, key := range e.Keys() {
			ev, _ := e.Get(key)
			av, present := a.Get(key)
			if !present {
				w.fail(p.field(key), Describe(ev), missing)
				continue
			}
			w.compare(p.field(key), ev, av)
		}
	case Array:
		a, ok := actual.(Array)
		if !ok {
			w.fail(p, Describe(expected), Describe(actual))
			return
		}
		w.compareArray(p, e, a)
	default:
		if !scalarsEqual(expected, actual) {
			w.fail(p, Describe(expected), Describe(actual))
		}
	}
}

func scalarsEqual(expected, actual Value) bool {
	switch e := expected.(type) {
	case Null:
		_, ok := actual.(Null)
		return ok
	case Bool:
		a, ok := actual.(Bool)
		return ok && a == e
	case Number:
		a, ok := actual.(Number)
		return ok && e.Equal(a)
	case String:
		return textEqual([]byte(e), actual)
	case Bytes:
		return textEqual(e, actual)
	}
	return false
}

// textEqual lets a declared string match an opaque body with the same bytes.
func textEqual(expected []byte, actual Value) bool {
	switch a := actual.(type) {
	case String:
		return bytes.Equal(expected, []byte(a))
	case Bytes:
		return bytes.Equal(expected, a)
	}
	return false
}

func sameKind(expected, actual Value) bool {
	ek, ak := expected.Kind(), actual.Kind()
	if ek == KindBytes {
		ek = KindString
	}
	if ak == KindBytes {
		ak = KindString
	}
	return ek == ak
}
