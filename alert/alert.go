// Package alert decides which notifications a humidity reading triggers,
// given the reading from the previous run.
package alert

import "fmt"

type Kind string

const (
	Rising   Kind = "rising"
	Recovery Kind = "recovery"
)

const (
	TitleAbove = "Rel. humidity above threshold"
	TitleOK    = "Rel. humidity OK"
)

type Notification struct {
	Kind    Kind
	Title   string
	Message string
}

// Humidity compares the current reading against maxHumidity. A rising alert
// fires when the reading reaches the threshold coming from at or below it (or
// from no previous reading at all). A recovery alert fires when the reading
// drops below the threshold having previously been above it.
//
// Both checks are independent and their results are returned in that order.
func Humidity(current int, previous *int, maxHumidity int) []Notification {
	var out []Notification

	if current >= maxHumidity && (previous == nil || *previous <= maxHumidity) {
		out = append(out, Notification{
			Kind:    Rising,
			Title:   TitleAbove,
			Message: fmt.Sprintf("Humidity is: %d%%", current),
		})
	}

	if current < maxHumidity && previous != nil && *previous > maxHumidity {
		out = append(out, Notification{
			Kind:    Recovery,
			Title:   TitleOK,
			Message: fmt.Sprintf("Humidity returned to OK value (%d%%)", current),
		})
	}

	return out
}
