// Package timefield compiles one classical cron field (minute / hour /
// day-of-month / month / day-of-week) into a sorted set of integers,
// following spec §4.2. The "*" sentinel is reported separately rather
// than folded into the value domain, since an empty set and "*" are not
// interchangeable downstream.
package timefield

import (
	"sort"
	"strconv"
	"strings"
)

// Identity is the mapping used for minute/hour/day fields: the field's
// tokens are plain base-10 integers, no symbolic names.
func Identity(token string) (int, bool) {
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return v, true
}

// monthNames deliberately omits "oct": this is a documented upstream
// quirk (spec §9 Open Question 1), not an oversight. A field value of
// "oct" falls through to integer parsing, fails, and the field compiles
// to an empty set.
var monthNames = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "nov", "dec"}

// Month maps a month token to 1..12, trying integer parsing first and
// then a three-letter name lookup.
func Month(token string) (int, bool) {
	if v, ok := Identity(token); ok {
		return v, true
	}
	if len(token) < 3 {
		return 0, false
	}
	idx := indexOf(monthNames, strings.ToLower(token[:3]))
	if idx < 0 {
		return 0, false
	}
	return idx + 1, true
}

var dowNames = []string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// Weekday maps a day-of-week token to 0 (Sun) .. 6 (Sat), trying a
// three-letter name lookup first and falling back to "int(dow) % 7" so
// that both 0 and 7 resolve to Sunday (spec §9 weekday domain quirk).
func Weekday(token string) (int, bool) {
	prefix := token
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if idx := indexOf(dowNames, strings.ToLower(prefix)); idx >= 0 {
		return idx, true
	}
	v, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	m := v % 7
	if m < 0 {
		m += 7
	}
	return m, true
}

func indexOf(names []string, v string) int {
	for i, n := range names {
		if n == v {
			return i
		}
	}
	return -1
}

// Compile compiles field against a domain of the given length whose
// values run offset..offset+length-1 (offset is 1 for 1-based domains —
// days, months — and 0 for 0-based domains — minutes, hours, weekdays).
//
// Returns star=true for the literal "*" sentinel. Returns ok=false if the
// field fails to parse cleanly; the caller is responsible for logging a
// severity-3 diagnostic (it has the filename/line context this package
// does not).
func Compile(field string, length int, oneBased bool, mapping func(string) (int, bool)) (values []int, star bool, ok bool) {
	if field == "*" {
		return nil, true, true
	}

	offset := 0
	if oneBased {
		offset = 1
	}

	seen := make(map[int]struct{})
	for _, term := range strings.Split(field, ",") {
		rangePart, step, ok := splitStep(term)
		if !ok {
			return nil, false, false
		}
		if step <= 0 {
			return nil, false, false
		}

		if rangePart == "*" {
			for i := 0; i < length; i += step {
				seen[i+offset] = struct{}{}
			}
			continue
		}

		startTok, endTok := rangePart, rangePart
		if idx := strings.IndexByte(rangePart, '-'); idx >= 0 {
			startTok, endTok = rangePart[:idx], rangePart[idx+1:]
		}
		startVal, sok := mapping(startTok)
		endVal, eok := mapping(endTok)
		if !sok || !eok {
			return nil, false, false
		}

		// Transliterated from parse_period's
		// "slice(mapping(start)-1+int(not bool(base)), mapping(end)+int(not bool(base)), step)"
		// (systemd-crontab-generator.py line 287): for 1-based domains
		// (base truthy) this is [start-1, end); for 0-based domains
		// (base falsy, weekday's string base forced to 0) it is
		// [start, end+1). See spec §9 Open Question 2.
		var lo, hi int
		if oneBased {
			lo, hi = startVal-1, endVal
		} else {
			lo, hi = startVal, endVal+1
		}
		for _, v := range pySlice(length, offset, lo, hi, step) {
			seen[v] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil, false, false
	}
	values = make([]int, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Ints(values)
	return values, false, true
}

// splitStep splits "RANGE/STEP" into its parts, defaulting STEP to 1 when
// absent. A term with more than one '/' cannot be unpacked into exactly
// two parts in the original (a ValueError there falls back to treating
// the whole term as the range with step 1, which then fails to parse
// further down and yields an empty field) — so it's reported as a parse
// failure directly here, with the identical end result.
func splitStep(term string) (rangePart string, step int, ok bool) {
	idx := strings.IndexByte(term, '/')
	if idx < 0 {
		return term, 1, true
	}
	rest := term[idx+1:]
	if strings.Contains(rest, "/") {
		return "", 0, false
	}
	s, err := strconv.Atoi(rest)
	if err != nil {
		return "", 0, false
	}
	return term[:idx], s, true
}

// pySlice replicates Python's slice(start, end, step) index normalisation
// over a sequence of the given length, then maps indices to domain
// values via +offset.
func pySlice(length, offset, start, end, step int) []int {
	if start < 0 {
		start += length
		if start < 0 {
			start = 0
		}
	}
	if start > length {
		start = length
	}
	if end < 0 {
		end += length
		if end < 0 {
			end = 0
		}
	}
	if end > length {
		end = length
	}
	var out []int
	for i := start; i < end; i += step {
		out = append(out, i+offset)
	}
	return out
}
