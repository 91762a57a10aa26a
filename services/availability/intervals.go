package availability

import (
	"fmt"
	"sort"

	"sessionledger/models"
)

// interval is a half-open [start, end) block in minutes from midnight.
type interval struct {
	start int
	end   int
}

// mergeIntervals sorts and coalesces overlapping or abutting intervals.
func mergeIntervals(in []interval) []interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	out := []interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if iv.start <= last.end {
			if iv.end > last.end {
				last.end = iv.end
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// subtractIntervals removes every blocked interval from the open set,
// splitting open blocks where a blocked window lands in the middle.
func subtractIntervals(open, blocked []interval) []interval {
	out := open
	for _, b := range blocked {
		var next []interval
		for _, o := range out {
			if b.end <= o.start || b.start >= o.end {
				next = append(next, o)
				continue
			}
			if b.start > o.start {
				next = append(next, interval{start: o.start, end: b.start})
			}
			if b.end < o.end {
				next = append(next, interval{start: b.end, end: o.end})
			}
		}
		out = next
	}
	return out
}

// minuteLabel renders a minute-of-day as a clock label, e.g. 570 -> "9:30 AM".
func minuteLabel(m int) string {
	h := m / 60
	min := m % 60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, min, suffix)
}

func toOpenIntervals(in []interval) []models.OpenInterval {
	out := make([]models.OpenInterval, 0, len(in))
	for _, iv := range in {
		out = append(out, models.OpenInterval{
			Start: iv.start,
			End:   iv.end,
			Label: fmt.Sprintf("%s - %s", minuteLabel(iv.start), minuteLabel(iv.end)),
		})
	}
	return out
}
