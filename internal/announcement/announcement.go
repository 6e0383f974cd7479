package announcement

import "time"

type Announcement struct {
	Message string
	Start   time.Time
	End     time.Time
	State   State
}

func (a Announcement) StateAt(now time.Time) State {
	return Classify(a.Start, a.End, now)
}

// Evaluate returns copies of items with State derived from now. Whatever
// state the inputs carried is ignored.
func Evaluate(items []Announcement, now time.Time) []Announcement {
	out := make([]Announcement, 0, len(items))
	for _, item := range items {
		item.State = Classify(item.Start, item.End, now)
		out = append(out, item)
	}
	return out
}

func FilterState(items []Announcement, state State) []Announcement {
	out := make([]Announcement, 0, len(items))
	for _, item := range items {
		if item.State == state {
			out = append(out, item)
		}
	}
	return out
}

func CountByState(items []Announcement) map[State]int {
	counts := make(map[State]int, len(allStates))
	for _, state := range allStates {
		counts[state] = 0
	}
	for _, item := range items {
		if item.State.Valid() {
			counts[item.State]++
		}
	}
	return counts
}

// Key identifies an announcement by its content and window.
func (a Announcement) Key() string {
	return a.Message + "\x00" + a.Start.UTC().Format(time.RFC3339) + "\x00" + a.End.UTC().Format(time.RFC3339)
}
