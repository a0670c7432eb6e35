package client

import (
	"fmt"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/store"
)

// FeedItem is one line of the rendered feed: either a day separator or a
// message, never both.
type FeedItem struct {
	Separator string
	Message   *store.Message
}

var frenchWeekdays = [...]string{
	"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi",
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// DayLabel returns the separator label for a message day relative to now:
// "Aujourd'hui", "Hier", or the weekday with the date. The year is appended
// only when it differs from the current one.
func DayLabel(day, now time.Time) string {
	if sameDate(day, now) {
		return "Aujourd'hui"
	}
	if sameDate(day, now.AddDate(0, 0, -1)) {
		return "Hier"
	}

	y1 := now.Year()
	y2, m2, d2 := day.Date()

	label := fmt.Sprintf("%s %d %s", frenchWeekdays[day.Weekday()], d2, frenchMonths[m2-1])
	if y2 != y1 {
		label = fmt.Sprintf("%s %d", label, y2)
	}
	return label
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// WithSeparators interleaves day separators into a feed already ordered by
// send time. The function is pure: same input, same output, no state
// carried between calls. Exactly one separator precedes each run of
// messages sharing a calendar day.
func WithSeparators(msgs []*store.Message, now time.Time) []FeedItem {
	items := make([]FeedItem, 0, len(msgs)+4)

	var lastDay time.Time
	haveDay := false
	for _, msg := range msgs {
		if !haveDay || !sameDate(msg.SentAt, lastDay) {
			items = append(items, FeedItem{Separator: DayLabel(msg.SentAt, now)})
			lastDay = msg.SentAt
			haveDay = true
		}
		items = append(items, FeedItem{Message: msg})
	}
	return items
}
