// Package itip renders events as iCalendar scheduling messages (RFC 5546) for mail notices and
// calendar export.
package itip

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"

	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/models"
)

// ProductID identifies this service in PRODID.
const ProductID = "-//calsched//calendar scheduling//EN"

// ContentType is the MIME type for iCalendar bodies; the method parameter is appended per message.
const ContentType = "text/calendar"

// Method is an iTIP method.
type Method string

const (
	MethodPublish        Method = "PUBLISH"
	MethodRequest        Method = "REQUEST"
	MethodCancel         Method = "CANCEL"
	MethodCounter        Method = "COUNTER"
	MethodDeclineCounter Method = "DECLINECOUNTER"
)

// Party is an organizer or attendee address.
type Party struct {
	Email  string
	Name   string
	Status invitation.Status
}

// Message describes one VEVENT inside a scheduling message.
type Message struct {
	Method      Method
	EventID     string
	Summary     string
	Description string
	Location    string
	URL         string
	Start       time.Time
	End         time.Time
	Sequence    int
	Cancelled   bool
	Organizer   Party
	Attendees   []Party
	Comment     string
	Stamp       time.Time
}

// UID returns the stable iCalendar UID for an event id.
func UID(eventID string) string {
	return eventID + "@calsched"
}

// FromEvent builds a message for event addressed to the recipients of invitations. The organizer
// must be preloaded for ORGANIZER to carry a name.
func FromEvent(method Method, event models.Event, invitations []models.Invitation, stamp time.Time) Message {
	msg := Message{
		Method:      method,
		EventID:     event.ID,
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		URL:         event.VideoConferenceLink,
		Start:       event.StartAt,
		End:         event.EndAt,
		Sequence:    event.Sequence,
		Cancelled:   event.Cancelled() || method == MethodCancel,
		Stamp:       stamp,
	}
	if event.Organizer != nil {
		msg.Organizer = Party{Email: event.Organizer.Email, Name: event.Organizer.Name()}
	}
	for _, inv := range invitations {
		msg.Attendees = append(msg.Attendees, Party{Email: inv.RecipientEmail, Status: inv.Status})
	}
	return msg
}

// Counter builds the COUNTER message an attendee's proposal maps to.
func Counter(event models.Event, inv models.Invitation, stamp time.Time) (Message, error) {
	if inv.ProposedStart == nil || inv.ProposedEnd == nil {
		return Message{}, fmt.Errorf("itip: invitation %s has no proposal", inv.ID)
	}
	msg := FromEvent(MethodCounter, event, []models.Invitation{inv}, stamp)
	msg.Start = *inv.ProposedStart
	msg.End = *inv.ProposedEnd
	msg.Comment = inv.ResponseNote
	return msg, nil
}

// Calendar converts msg into an iCalendar object.
func (m Message) Calendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)
	if m.Method != "" {
		cal.Props.SetText(ical.PropMethod, string(m.Method))
	}

	stamp := m.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	ev := ical.NewComponent(ical.CompEvent)
	ev.Props.SetText(ical.PropUID, UID(m.EventID))
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, m.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, m.End.UTC())
	ev.Props.SetText(ical.PropSummary, m.Summary)

	seq := ical.NewProp(ical.PropSequence)
	seq.Value = strconv.Itoa(m.Sequence)
	ev.Props.Set(seq)

	if m.Description != "" {
		ev.Props.SetText(ical.PropDescription, m.Description)
	}
	if m.Location != "" {
		ev.Props.SetText(ical.PropLocation, m.Location)
	}
	if m.URL != "" {
		if u, err := url.Parse(m.URL); err == nil {
			ev.Props.SetURI(ical.PropURL, u)
		}
	}
	if m.Comment != "" {
		ev.Props.SetText(ical.PropComment, m.Comment)
	}

	status := "CONFIRMED"
	if m.Cancelled {
		status = "CANCELLED"
	}
	ev.Props.SetText(ical.PropStatus, status)

	if m.Organizer.Email != "" {
		ev.Props.Add(address(ical.PropOrganizer, m.Organizer))
	}
	for _, attendee := range m.Attendees {
		prop := address(ical.PropAttendee, attendee)
		prop.Params.Set(ical.ParamParticipationStatus, partStat(attendee.Status))
		prop.Params.Set(ical.ParamRole, "REQ-PARTICIPANT")
		if m.Method == MethodRequest && attendee.Status == invitation.StatusPending {
			prop.Params.Set(ical.ParamRSVP, "TRUE")
		}
		ev.Props.Add(prop)
	}

	cal.Children = append(cal.Children, ev)
	return cal
}

// Encode writes msg as iCalendar text.
func (m Message) Encode(w io.Writer) error {
	if err := ical.NewEncoder(w).Encode(m.Calendar()); err != nil {
		return fmt.Errorf("itip: encode %s: %w", m.Method, err)
	}
	return nil
}

// Bytes encodes msg into memory.
func (m Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MIMEType returns the Content-Type header value for msg.
func (m Message) MIMEType() string {
	if m.Method == "" {
		return ContentType + "; charset=utf-8"
	}
	return fmt.Sprintf("%s; charset=utf-8; method=%s", ContentType, m.Method)
}

func address(name string, party Party) *ical.Prop {
	prop := ical.NewProp(name)
	prop.Value = "mailto:" + strings.ToLower(strings.TrimSpace(party.Email))
	if party.Name != "" {
		prop.Params.Set(ical.ParamCommonName, party.Name)
	}
	return prop
}

func partStat(status invitation.Status) string {
	switch status {
	case invitation.StatusAccepted:
		return "ACCEPTED"
	case invitation.StatusDeclined:
		return "DECLINED"
	case invitation.StatusProposed:
		return "TENTATIVE"
	default:
		return "NEEDS-ACTION"
	}
}
