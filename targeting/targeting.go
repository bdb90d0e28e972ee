// Package targeting evaluates an experiment's targeting rules against a
// caller-supplied attribute map. A rule is a tagged predicate union —
// literal, membership, or an operator map — matching §4.2's reshape of the
// source's dynamic-dictionary targeting into explicit operator tags,
// grounded on the condition/operator evaluation style of this codebase's
// routing rule engine.
package targeting

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is an explicit operator tag. Unknown operators reject the rule.
type Op string

const (
	OpIn  Op = "in"
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

var knownOps = map[Op]bool{OpIn: true, OpEq: true, OpNeq: true, OpGte: true, OpLte: true}

// Matches reports whether attributes satisfies every predicate named in
// rules. Empty rules match anything. Every attribute named in rules must
// be present in attributes; a missing attribute rejects the match.
func Matches(rules map[string]interface{}, attributes map[string]interface{}) bool {
	if len(rules) == 0 {
		return true
	}
	for name, predicate := range rules {
		value, ok := attributes[name]
		if !ok {
			return false
		}
		if !matchesPredicate(value, predicate) {
			return false
		}
	}
	return true
}

func matchesPredicate(value, predicate interface{}) bool {
	switch p := predicate.(type) {
	case map[string]interface{}:
		return matchesOperatorMap(value, p)
	case []interface{}:
		return containsValue(p, value)
	default:
		return equalScalar(value, predicate)
	}
}

func matchesOperatorMap(value interface{}, ops map[string]interface{}) bool {
	for rawOp, expected := range ops {
		op := Op(rawOp)
		if !knownOps[op] {
			return false
		}
		switch op {
		case OpIn:
			list, ok := expected.([]interface{})
			if !ok || !containsValue(list, value) {
				return false
			}
		case OpEq:
			if !equalScalar(value, expected) {
				return false
			}
		case OpNeq:
			if equalScalar(value, expected) {
				return false
			}
		case OpGte:
			if compareVersions(value, expected) < 0 {
				return false
			}
		case OpLte:
			if compareVersions(value, expected) > 0 {
				return false
			}
		}
	}
	return true
}

func containsValue(list []interface{}, value interface{}) bool {
	for _, item := range list {
		if equalScalar(item, value) {
			return true
		}
	}
	return false
}

// equalScalar compares after normalizing to string — attributes travel
// through JSON so numeric/string distinctions at the boundary are not
// load-bearing for equality.
func equalScalar(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareVersions parses each side by splitting on '.', taking the
// maximal leading run of decimal-digit tokens as integer components,
// zero-pads the shorter side, and compares lexicographically.
func compareVersions(left, right interface{}) int {
	l := versionParts(fmt.Sprint(left))
	r := versionParts(fmt.Sprint(right))
	size := len(l)
	if len(r) > size {
		size = len(r)
	}
	for len(l) < size {
		l = append(l, 0)
	}
	for len(r) < size {
		r = append(r, 0)
	}
	for i := 0; i < size; i++ {
		if l[i] < r[i] {
			return -1
		}
		if l[i] > r[i] {
			return 1
		}
	}
	return 0
}

func versionParts(s string) []int {
	tokens := strings.Split(s, ".")
	parts := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	return parts
}
