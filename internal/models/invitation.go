package models

import (
	"time"

	"github.com/charlesng35/calsched/internal/invitation"
)

// Invitation tracks one recipient's response to an event. (EventID, RecipientEmail) is unique.
type Invitation struct {
	BaseModel

	EventID string `gorm:"type:uuid;not null;uniqueIndex:idx_invitations_event_recipient" json:"event_id"`
	Event   *Event `gorm:"foreignKey:EventID" json:"event,omitempty"`

	RecipientEmail string  `gorm:"type:varchar(320);not null;uniqueIndex:idx_invitations_event_recipient;index" json:"recipient_email"`
	RecipientID    *string `gorm:"type:uuid;index" json:"recipient_id,omitempty"`

	Status        invitation.Status `gorm:"type:varchar(16);not null;index;default:'PENDING'" json:"status"`
	ProposedStart *time.Time        `json:"proposed_start,omitempty"`
	ProposedEnd   *time.Time        `json:"proposed_end,omitempty"`
	ResponseNote  string            `gorm:"type:text" json:"response_note"`
	RespondedAt   *time.Time        `json:"responded_at,omitempty"`
	RemindedAt    *time.Time        `json:"reminded_at,omitempty"`
}

// MachineState projects the record onto the state machine input.
func (i *Invitation) MachineState(eventCancelled bool) invitation.State {
	return invitation.State{
		Status:         i.Status,
		ProposedStart:  i.ProposedStart,
		ProposedEnd:    i.ProposedEnd,
		ResponseNote:   i.ResponseNote,
		RespondedAt:    i.RespondedAt,
		EventCancelled: eventCancelled,
	}
}

// ApplyState copies a state machine result back onto the record.
func (i *Invitation) ApplyState(state invitation.State) {
	i.Status = state.Status
	i.ProposedStart = state.ProposedStart
	i.ProposedEnd = state.ProposedEnd
	i.ResponseNote = state.ResponseNote
	i.RespondedAt = state.RespondedAt
}
