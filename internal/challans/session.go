package challans

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var sessionPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// SessionFor returns the fiscal-year label for t observed in loc. A fiscal
// year runs from April 1 of year Y through March 31 of Y+1 and is labeled
// "Y-Y+1".
func SessionFor(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return fmt.Sprintf("%d-%d", year, year+1)
}

// ValidSession reports whether label has the "Y-Y+1" shape.
func ValidSession(label string) bool {
	m := sessionPattern.FindStringSubmatch(label)
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}
