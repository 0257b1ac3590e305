package mockservice

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
)

const (
	matchType     = "type"
	matchRegex    = "regex"
	matchEquality = "equality"
)

// Rule relaxes literal equality at one path. Regex rules without an explicit
// match are accepted in the older `{"regex": "..."}` form.
type Rule struct {
	Match string `json:"match,omitempty"`
	Regex string `json:"regex,omitempty"`
	Min   *int   `json:"min,omitempty"`
	Max   *int   `json:"max,omitempty"`
}

func (r Rule) kind() string {
	switch {
	case r.Match != "":
		return r.Match
	case r.Regex != "":
		return matchRegex
	case r.Min != nil || r.Max != nil:
		return matchType
	}
	return matchEquality
}

func (r Rule) hasLength() bool {
	return r.Min != nil || r.Max != nil
}

func (r Rule) validate() error {
	switch r.kind() {
	case matchType, matchEquality:
	case matchRegex:
		if _, err := regexp.Compile(r.Regex); err != nil {
			return errors.Wrapf(err, "invalid regex rule '%s'", r.Regex)
		}
	default:
		return errors.Errorf("unsupported matcher '%s'", r.Match)
	}
	if r.Min != nil && *r.Min < 0 {
		return errors.Errorf("min must not be negative, got %d", *r.Min)
	}
	if r.Min != nil && r.Max != nil && *r.Max < *r.Min {
		return errors.Errorf("max %d is less than min %d", *r.Max, *r.Min)
	}
	return nil
}

// MatchingRules holds the rules of one request or response. Body rules are
// keyed by expressions rooted at the body ("$", "$.a", "$.items[*].id").
// Rules for other parts are kept as declared but only the path rule is
// evaluated.
type MatchingRules struct {
	Path  *Rule
	Body  map[string]Rule
	Other map[string]json.RawMessage
}

func (m *MatchingRules) isEmpty() bool {
	return m == nil || (m.Path == nil && len(m.Body) == 0 && len(m.Other) == 0)
}

// BodyRule returns the rule for a body path expression.
func (m *MatchingRules) BodyRule(path string) (Rule, bool) {
	if m == nil {
		return Rule{}, false
	}
	r, ok := m.Body[path]
	return r, ok
}

// MarshalJSON always writes the "$.body.x" form, keys sorted.
func (m *MatchingRules) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range m.Other {
		out[k] = v
	}
	if m.Path != nil {
		b, err := json.Marshal(m.Path)
		if err != nil {
			return nil, err
		}
		out["$.path"] = b
	}
	for k, v := range m.Body {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out["$.body"+strings.TrimPrefix(k, "$")] = b
	}
	// encoding/json sorts map keys
	return json.Marshal(out)
}

func (m *MatchingRules) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "matchingRules must be an object")
	}

	rules := MatchingRules{Body: map[string]Rule{}}
	for key, value := range raw {
		switch {
		case key == "$.path":
			r, err := parseRule(value)
			if err != nil {
				return errors.Wrap(err, "invalid path rule")
			}
			rules.Path = &r
		case key == "path":
			r, err := parseRule(value)
			if err != nil {
				return errors.Wrap(err, "invalid path rule")
			}
			rules.Path = &r
		case key == "$.body" || strings.HasPrefix(key, "$.body.") || strings.HasPrefix(key, "$.body["):
			r, err := parseRule(value)
			if err != nil {
				return errors.Wrapf(err, "invalid rule for '%s'", key)
			}
			if err := rules.addBodyRule("$"+strings.TrimPrefix(key, "$.body"), r); err != nil {
				return err
			}
		case key == "body":
			nested := map[string]json.RawMessage{}
			if err := json.Unmarshal(value, &nested); err != nil {
				return errors.Wrap(err, "body rules must be an object")
			}
			for path, v := range nested {
				r, err := parseRule(v)
				if err != nil {
					return errors.Wrapf(err, "invalid rule for '%s'", path)
				}
				if !strings.HasPrefix(path, "$") {
					path = "$." + path
				}
				if err := rules.addBodyRule(path, r); err != nil {
					return err
				}
			}
		default:
			if rules.Other == nil {
				rules.Other = map[string]json.RawMessage{}
			}
			rules.Other[key] = value
		}
	}
	if len(rules.Body) == 0 {
		rules.Body = nil
	}
	*m = rules
	return nil
}

func (m *MatchingRules) addBodyRule(path string, r Rule) error {
	if _, err := jsonpath.New(path); err != nil {
		return errors.Wrapf(err, "invalid rule path '%s'", path)
	}
	if _, err := parseRulePath(path); err != nil {
		return err
	}
	m.Body[path] = r
	return nil
}

// parseRule accepts a single rule object or a {"matchers": [...]} list, of
// which the first matcher is used.
func parseRule(data json.RawMessage) (Rule, error) {
	var withMatchers struct {
		Matchers []Rule `json:"matchers"`
	}
	if err := json.Unmarshal(data, &withMatchers); err == nil && len(withMatchers.Matchers) > 0 {
		r := withMatchers.Matchers[0]
		return r, r.validate()
	}

	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return Rule{}, errors.Wrap(err, "rule must be an object")
	}
	return r, r.validate()
}

// pathSegment is one step of a body path. wildcard matches any key or index.
type pathSegment struct {
	key      string
	index    int
	isIndex  bool
	wildcard bool
}

func (s pathSegment) String() string {
	switch {
	case s.wildcard && s.isIndex:
		return "[*]"
	case s.wildcard:
		return ".*"
	case s.isIndex:
		return "[" + strconv.Itoa(s.index) + "]"
	case strings.ContainsAny(s.key, ".[]' "):
		return "['" + s.key + "']"
	}
	return "." + s.key
}

type bodyPath []pathSegment

func (p bodyPath) String() string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, s := range p {
		sb.WriteString(s.String())
	}
	return sb.String()
}

func (p bodyPath) field(key string) bodyPath {
	return append(p[:len(p):len(p)], pathSegment{key: key})
}

func (p bodyPath) index(i int) bodyPath {
	return append(p[:len(p):len(p)], pathSegment{index: i, isIndex: true})
}

func parseRulePath(expr string) (bodyPath, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, errors.Errorf("rule path '%s' must start with '$'", expr)
	}
	var path bodyPath
	rest := expr[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			name := rest[:end]
			if name == "" {
				return nil, errors.Errorf("empty field name in rule path '%s'", expr)
			}
			if name == "*" {
				path = append(path, pathSegment{wildcard: true})
			} else {
				path = append(path, pathSegment{key: name})
			}
			rest = rest[end:]
		case '[':
			end := strings.Index(rest, "]")
			if end < 0 {
				return nil, errors.Errorf("unterminated '[' in rule path '%s'", expr)
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			switch {
			case inner == "*":
				path = append(path, pathSegment{wildcard: true, isIndex: true})
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				path = append(path, pathSegment{key: inner[1 : len(inner)-1]})
			default:
				i, err := strconv.Atoi(inner)
				if err != nil || i < 0 {
					return nil, errors.Errorf("invalid index '%s' in rule path '%s'", inner, expr)
				}
				path = append(path, pathSegment{index: i, isIndex: true})
			}
		default:
			return nil, errors.Errorf("unexpected '%c' in rule path '%s'", rest[0], expr)
		}
	}
	return path, nil
}

// matches reports whether the rule path selects the concrete path p and how
// many of its segments matched exactly.
func (rp bodyPath) matches(p bodyPath) (bool, int) {
	if len(rp) != len(p) {
		return false, 0
	}
	exact := 0
	for i, seg := range rp {
		actual := p[i]
		switch {
		case seg.wildcard && seg.isIndex:
			if !actual.isIndex {
				return false, 0
			}
		case seg.wildcard:
		case seg.isIndex:
			if !actual.isIndex || actual.index != seg.index {
				return false, 0
			}
			exact++
		default:
			if actual.isIndex || actual.key != seg.key {
				return false, 0
			}
			exact++
		}
	}
	return true, exact
}

type compiledRule struct {
	expr string
	path bodyPath
	rule Rule
}

// ruleSet is the lookup structure used while walking a body.
type ruleSet struct {
	rules []compiledRule
}

func newRuleSet(m *MatchingRules) *ruleSet {
	rs := &ruleSet{}
	if m == nil {
		return rs
	}
	for expr, r := range m.Body {
		p, err := parseRulePath(expr)
		if err != nil {
			continue
		}
		rs.rules = append(rs.rules, compiledRule{expr: expr, path: p, rule: r})
	}
	sort.Slice(rs.rules, func(i, j int) bool { return rs.rules[i].expr < rs.rules[j].expr })
	return rs
}

// lookup returns the most specific rule at p. Without one, the nearest
// ancestor's type rule is inherited (length constraints are not).
func (rs *ruleSet) lookup(p bodyPath) (Rule, string, bool) {
	if r, expr, ok := rs.exact(p); ok {
		return r, expr, true
	}
	for n := len(p) - 1; n >= 0; n-- {
		r, expr, ok := rs.exact(p[:n])
		if !ok {
			continue
		}
		if r.kind() == matchType {
			return Rule{Match: matchType}, expr, true
		}
		return Rule{}, "", false
	}
	return Rule{}, "", false
}

func (rs *ruleSet) exact(p bodyPath) (Rule, string, bool) {
	best := -1
	var found compiledRule
	for _, cr := range rs.rules {
		ok, score := cr.path.matches(p)
		if ok && score > best {
			best = score
			found = cr
		}
	}
	if best < 0 {
		return Rule{}, "", false
	}
	return found.rule, found.expr, true
}

func (rs *ruleSet) empty() bool {
	return len(rs.rules) == 0
}

func describeRule(r Rule) string {
	switch r.kind() {
	case matchRegex:
		return fmt.Sprintf("regex /%s/", r.Regex)
	case matchType:
		return "type"
	}
	return "equality"
}
