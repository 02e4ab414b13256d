package schedule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/example/scrap-tracking/internal/models"
)

// Window is a half-open [Start, End) interval in minutes since midnight.
type Window struct {
	Start int
	End   int
}

var clockRe = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\s*(AM|PM)\b`)

// ParseWindow turns a free-text slot like "9:00 AM - 12:00 PM" into a
// minutes-since-midnight window. Anything that does not contain exactly
// two 12-hour clock times is unparseable; callers fail open on that.
func ParseWindow(s string) (Window, bool) {
	matches := clockRe.FindAllStringSubmatch(s, -1)
	if len(matches) != 2 {
		return Window{}, false
	}
	start, ok := toMinutes(matches[0])
	if !ok {
		return Window{}, false
	}
	end, ok := toMinutes(matches[1])
	if !ok {
		return Window{}, false
	}
	return Window{Start: start, End: end}, true
}

func toMinutes(m []string) (int, bool) {
	h, err := strconv.Atoi(m[1])
	if err != nil || h < 1 || h > 12 {
		return 0, false
	}
	min, err := strconv.Atoi(m[2])
	if err != nil || min > 59 {
		return 0, false
	}
	h = h % 12
	if strings.EqualFold(m[3], "PM") {
		h += 12
	}
	return h*60 + min, true
}

// Overlaps tests half-open interval overlap; touching boundaries do not
// collide.
func (w Window) Overlaps(o Window) bool {
	return !(w.End <= o.Start || w.Start >= o.End)
}

// Conflicts reports whether accepting the candidate slot would collide
// with an existing active assignment on the same date. The check is
// advisory: unscheduled candidates and unparseable windows never block,
// and the first overlap found wins.
func Conflicts(candidate *models.PickupSlot, preferredTime string, existing []models.Assignment) bool {
	if candidate == nil && strings.TrimSpace(preferredTime) == "" {
		return false
	}
	var date, window string
	if candidate != nil {
		date = candidate.Date
		window = candidate.Slot
	}
	if window == "" {
		window = preferredTime
	}
	if date == "" || window == "" {
		return false
	}
	cand, ok := ParseWindow(window)
	if !ok {
		return false
	}
	for i := range existing {
		a := &existing[i]
		if a.Status == models.StatusCompleted {
			continue
		}
		if a.PickupSlot == nil || a.PickupSlot.Date != date {
			continue
		}
		w, ok := ParseWindow(a.PickupSlot.Slot)
		if !ok {
			continue
		}
		if cand.Overlaps(w) {
			return true
		}
	}
	return false
}
