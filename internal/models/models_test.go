package models

import (
	"testing"
	"time"

	"github.com/charlesng35/calsched/internal/invitation"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	if err := base.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if base.ID == "" {
		t.Fatal("expected base model ID to be generated")
	}

	keep := BaseModel{ID: "fixed"}
	if err := keep.BeforeCreate(nil); err != nil {
		t.Fatalf("before create: %v", err)
	}
	if keep.ID != "fixed" {
		t.Fatalf("expected explicit ID to be kept, got %q", keep.ID)
	}
}

func TestEmbeddedModelsUseBaseBeforeCreate(t *testing.T) {
	cases := []struct {
		name  string
		model func() *BaseModel
	}{
		{"user", func() *BaseModel { return &(&User{}).BaseModel }},
		{"event", func() *BaseModel { return &(&Event{}).BaseModel }},
		{"invitation", func() *BaseModel { return &(&Invitation{}).BaseModel }},
		{"notification", func() *BaseModel { return &(&Notification{}).BaseModel }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := tc.model()
			if err := model.BeforeCreate(nil); err != nil {
				t.Fatalf("before create: %v", err)
			}
			if model.ID == "" {
				t.Fatal("expected ID to be generated")
			}
		})
	}
}

func TestUserEmailNormalisation(t *testing.T) {
	u := &User{Email: "  Alice@Example.COM "}
	if err := u.BeforeSave(nil); err != nil {
		t.Fatalf("before save: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", u.Email)
	}
	if u.Name() != "alice@example.com" {
		t.Fatalf("expected email fallback, got %q", u.Name())
	}
	u.DisplayName = "Alice"
	if u.Name() != "Alice" {
		t.Fatalf("expected display name, got %q", u.Name())
	}
}

func TestInvitationStateRoundTrip(t *testing.T) {
	start := time.Date(2025, 10, 21, 17, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	inv := &Invitation{Status: invitation.StatusProposed, ProposedStart: &start, ProposedEnd: &end, ResponseNote: "later?"}

	state := inv.MachineState(true)
	if state.Status != invitation.StatusProposed || !state.EventCancelled || state.ResponseNote != "later?" {
		t.Fatalf("unexpected state %+v", state)
	}

	state.Status = invitation.StatusSuperseded
	inv.ApplyState(state)
	if inv.Status != invitation.StatusSuperseded || inv.ProposedStart == nil {
		t.Fatalf("unexpected invitation %+v", inv)
	}
}

func TestEventCancelled(t *testing.T) {
	var nilEvent *Event
	if nilEvent.Cancelled() {
		t.Fatal("nil event must not be cancelled")
	}
	now := time.Now()
	if !(&Event{CancelledAt: &now}).Cancelled() {
		t.Fatal("expected tombstoned event to be cancelled")
	}
}
