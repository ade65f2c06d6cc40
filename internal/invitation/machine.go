// Package invitation implements the per-recipient invitation state machine.
//
// Apply is a pure function: it never touches storage and returns the next state together with
// the side effects the caller must apply atomically.
package invitation

import (
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/calsched/internal/domain"
)

// Status is the lifecycle state of an invitation.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusDeclined   Status = "DECLINED"
	StatusProposed   Status = "PROPOSED"
	StatusSuperseded Status = "SUPERSEDED"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusAccepted, StatusDeclined, StatusProposed, StatusSuperseded}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, known := range Statuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("invitation: unknown status %q: %w", value, domain.ErrValidation)
}

// Terminal reports whether no action can leave the status.
func (s Status) Terminal() bool {
	return len(Reachable(s)) == 0
}

// Action is a transition request.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionDecline        Action = "decline"
	ActionPropose        Action = "propose"
	ActionAcceptProposal Action = "accept-proposal"
	ActionRejectProposal Action = "reject-proposal"
)

// ParseAction parses a recipient or organizer action name.
func ParseAction(value string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(value)))
	switch action {
	case ActionAccept, ActionDecline, ActionPropose, ActionAcceptProposal, ActionRejectProposal:
		return action, nil
	}
	return "", fmt.Errorf("invitation: unknown action %q: %w", value, domain.ErrValidation)
}

// OrganizerOnly reports whether the action is reserved for the event organizer.
func (a Action) OrganizerOnly() bool {
	return a == ActionAcceptProposal || a == ActionRejectProposal
}

// DefaultRejectionNote replaces the response note when an organizer rejects a proposal without one.
const DefaultRejectionNote = "Proposal rejected by organizer"

// State is the mutable part of an invitation.
type State struct {
	Status         Status
	ProposedStart  *time.Time
	ProposedEnd    *time.Time
	ResponseNote   string
	RespondedAt    *time.Time
	EventCancelled bool
}

// Command is a transition request with the actor's relationship to the invitation.
type Command struct {
	Action      Action
	IsRecipient bool
	IsOrganizer bool

	ProposedStart time.Time
	ProposedEnd   time.Time
	// Note replaces the response note when non-nil.
	Note *string
	Now  time.Time
}

// Outcome is the result of a successful transition.
type Outcome struct {
	From  Status
	State State
	// SupersedeSiblings asks the caller to supersede every other PROPOSED invitation of the event.
	SupersedeSiblings bool
	// EventTime is set when the owning event must move to this range.
	EventTime *TimeRange
}

// TimeRange is a half-open UTC range.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

var transitions = map[Status]map[Action]Status{
	StatusPending: {
		ActionAccept:  StatusAccepted,
		ActionDecline: StatusDeclined,
		ActionPropose: StatusProposed,
	},
	StatusProposed: {
		ActionAcceptProposal: StatusAccepted,
		ActionRejectProposal: StatusDeclined,
	},
}

// Reachable lists the statuses reachable from from in one step, supersession included.
func Reachable(from Status) []Status {
	var out []Status
	for _, candidate := range Statuses {
		if candidate == StatusSuperseded && from == StatusProposed {
			out = append(out, candidate)
			continue
		}
		for _, to := range transitions[from] {
			if to == candidate {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// Apply computes the transition for cmd. After the action is recognised, checks run in order:
// actor, payload, state. On error the input state is returned untouched.
func Apply(state State, cmd Command) (Outcome, error) {
	target, known := targetOf(cmd.Action)
	if !known {
		return Outcome{}, fmt.Errorf("invitation: unknown action %q: %w", cmd.Action, domain.ErrValidation)
	}
	if cmd.Action.OrganizerOnly() {
		if !cmd.IsOrganizer {
			return Outcome{}, fmt.Errorf("invitation: %s requires the event organizer: %w", cmd.Action, domain.ErrNotAuthorized)
		}
	} else if !cmd.IsRecipient {
		return Outcome{}, fmt.Errorf("invitation: %s requires the recipient: %w", cmd.Action, domain.ErrNotAuthorized)
	}

	if cmd.Action == ActionPropose {
		if cmd.ProposedStart.IsZero() || cmd.ProposedEnd.IsZero() || !cmd.ProposedStart.Before(cmd.ProposedEnd) {
			return Outcome{}, fmt.Errorf("invitation: proposed start must precede proposed end: %w", domain.ErrValidation)
		}
	}

	if state.EventCancelled {
		return Outcome{}, fmt.Errorf("invitation: event is cancelled: %w", domain.ErrInvalidStateTransition)
	}
	if to, ok := transitions[state.Status][cmd.Action]; !ok || to != target {
		return Outcome{}, fmt.Errorf("invitation: cannot %s from %s: %w", cmd.Action, state.Status, domain.ErrInvalidStateTransition)
	}

	now := cmd.Now.UTC()
	next := state
	next.Status = target
	next.RespondedAt = &now
	if cmd.Note != nil {
		next.ResponseNote = *cmd.Note
	}

	out := Outcome{From: state.Status}
	switch cmd.Action {
	case ActionPropose:
		start, end := cmd.ProposedStart.UTC(), cmd.ProposedEnd.UTC()
		next.ProposedStart, next.ProposedEnd = &start, &end
	case ActionAcceptProposal:
		if state.ProposedStart == nil || state.ProposedEnd == nil {
			return Outcome{}, fmt.Errorf("invitation: proposal has no time range: %w", domain.ErrInvalidStateTransition)
		}
		out.EventTime = &TimeRange{Start: state.ProposedStart.UTC(), End: state.ProposedEnd.UTC()}
		out.SupersedeSiblings = true
		next.ProposedStart, next.ProposedEnd = nil, nil
	case ActionRejectProposal:
		if cmd.Note == nil || strings.TrimSpace(*cmd.Note) == "" {
			next.ResponseNote = DefaultRejectionNote
		}
		next.ProposedStart, next.ProposedEnd = nil, nil
	}

	out.State = next
	return out, nil
}

// Supersede demotes a competing proposal after another proposal of the same event was accepted.
// The proposed range is retained.
func Supersede(state State) (State, error) {
	if state.Status != StatusProposed {
		return state, fmt.Errorf("invitation: cannot supersede from %s: %w", state.Status, domain.ErrInvalidStateTransition)
	}
	state.Status = StatusSuperseded
	return state, nil
}

func targetOf(action Action) (Status, bool) {
	for _, actions := range transitions {
		if to, ok := actions[action]; ok {
			return to, true
		}
	}
	return "", false
}
