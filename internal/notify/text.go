package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/timewindow"
)

const timeLayout = "Mon Jan 2, 2006 15:04 MST"

// Describe renders a one-line title and a short plain-text message for e.
func Describe(e Event) (title, message string) {
	ev := e.Event
	when := formatRange(ev.StartAt, ev.EndAt, ev.Timezone)

	switch e.Kind {
	case KindInvited:
		organizer := "The organizer"
		if ev.Organizer != nil {
			organizer = ev.Organizer.Name()
		}
		return "Invitation: " + ev.Title, fmt.Sprintf("%s invited you to %q on %s.", organizer, ev.Title, when)

	case KindTimeChanged:
		var b strings.Builder
		fmt.Fprintf(&b, "%q moved to %s", ev.Title, when)
		if e.PreviousStart != nil && e.PreviousEnd != nil {
			fmt.Fprintf(&b, " (was %s)", formatRange(*e.PreviousStart, *e.PreviousEnd, ev.Timezone))
		}
		b.WriteString(".")
		return "Updated: " + ev.Title, b.String()

	case KindDetailsChanged:
		return "Updated: " + ev.Title, fmt.Sprintf("The details of %q on %s were updated.", ev.Title, when)

	case KindCancelled:
		return "Cancelled: " + ev.Title, fmt.Sprintf("%q on %s was cancelled.", ev.Title, when)

	case KindResponded:
		inv := e.Invitation
		if inv == nil {
			return "Response: " + ev.Title, ""
		}
		switch inv.Status {
		case invitation.StatusProposed:
			msg := fmt.Sprintf("%s proposed %s for %q.", inv.RecipientEmail, formatRange(*inv.ProposedStart, *inv.ProposedEnd, ev.Timezone), ev.Title)
			return "New time proposed: " + ev.Title, withNote(msg, inv.ResponseNote)
		case invitation.StatusAccepted:
			return "Accepted: " + ev.Title, fmt.Sprintf("%s accepted %q.", inv.RecipientEmail, ev.Title)
		default:
			return "Declined: " + ev.Title, withNote(fmt.Sprintf("%s declined %q.", inv.RecipientEmail, ev.Title), inv.ResponseNote)
		}

	case KindProposalDecided:
		inv := e.Invitation
		if inv != nil && inv.Status == invitation.StatusDeclined {
			return "Proposal declined: " + ev.Title, withNote(fmt.Sprintf("Your proposed time for %q was declined.", ev.Title), inv.ResponseNote)
		}
		return "Proposal accepted: " + ev.Title, fmt.Sprintf("Your proposed time for %q was accepted: %s.", ev.Title, when)

	case KindReminder:
		return "Reminder: " + ev.Title, fmt.Sprintf("%q starts %s and is still awaiting your response.", ev.Title, when)
	}
	return ev.Title, ""
}

func formatRange(start, end time.Time, tz string) string {
	loc, err := timewindow.LoadZone(timewindow.ResolveTimezone(tz, "UTC"))
	if err != nil {
		loc = time.UTC
	}
	start, end = start.In(loc), end.In(loc)
	if timewindow.DateOf(start) == timewindow.DateOf(end) {
		return start.Format(timeLayout) + " - " + end.Format("15:04")
	}
	return start.Format(timeLayout) + " - " + end.Format(timeLayout)
}

func withNote(msg, note string) string {
	if note = strings.TrimSpace(note); note != "" {
		return msg + " Note: " + note
	}
	return msg
}
