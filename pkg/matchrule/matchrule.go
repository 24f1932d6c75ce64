// Package matchrule evaluates the MatchString comparison primitive shared
// by routing rules, lane rules and rate-limit rule labels.
package matchrule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/polarismesh/polaris-go/pkg/model"
)

// Eval reports whether actual satisfies match's comparison.
func Eval(match model.MatchString, actual string) bool {
	switch match.Type {
	case model.MatchExact:
		return actual == match.Value
	case model.MatchNotEquals:
		return actual != match.Value
	case model.MatchRegex:
		re, err := regexp.Compile(match.Value)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case model.MatchIn:
		for _, v := range strings.Split(match.Value, ",") {
			if strings.TrimSpace(v) == actual {
				return true
			}
		}
		return false
	case model.MatchNotIn:
		for _, v := range strings.Split(match.Value, ",") {
			if strings.TrimSpace(v) == actual {
				return false
			}
		}
		return true
	case model.MatchRange:
		lo, hi, ok := parseRange(match.Value)
		if !ok {
			return false
		}
		n, err := strconv.ParseFloat(actual, 64)
		if err != nil {
			return false
		}
		return n >= lo && n <= hi
	default:
		return false
	}
}

// parseRange parses a "lo~hi" range bound string.
func parseRange(v string) (float64, float64, bool) {
	lo, hi, ok := strings.Cut(v, "~")
	if !ok {
		return 0, 0, false
	}
	lof, err1 := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	hif, err2 := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lof, hif, true
}
