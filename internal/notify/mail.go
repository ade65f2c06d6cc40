package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/calsched/internal/invitation"
	"github.com/charlesng35/calsched/internal/itip"
	"github.com/charlesng35/calsched/pkg/logger"
	"github.com/charlesng35/calsched/pkg/mail"
)

// MailPublisher mails each recipient individually. Scheduling changes carry an iCalendar part so
// mail clients can update their copy of the event.
type MailPublisher struct {
	mailer mail.Mailer
	from   string
	log    *zap.Logger
}

// NewMailPublisher sends through mailer. from overrides the mailer's default sender when set.
func NewMailPublisher(mailer mail.Mailer, from string) *MailPublisher {
	return &MailPublisher{mailer: mailer, from: strings.TrimSpace(from), log: logger.WithModule("notify.mail")}
}

func (p *MailPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.mailer == nil {
		return nil
	}

	part, err := calendarPart(event)
	if err != nil {
		return err
	}
	subject, body := Describe(event)

	var errs error
	seen := make(map[string]struct{}, len(event.Recipients))
	for _, r := range event.Recipients {
		addr := strings.ToLower(strings.TrimSpace(r.Email))
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}

		err := p.mailer.Send(ctx, mail.Message{
			From:     p.from,
			To:       []string{addr},
			Subject:  subject,
			Body:     body,
			Calendar: part,
		})
		if errors.Is(err, mail.ErrSMTPDisabled) {
			p.log.Debug("smtp disabled, skipping mail", zap.String("kind", string(event.Kind)), zap.String("to", addr))
			return nil
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

func calendarPart(event Event) (*mail.CalendarPart, error) {
	stamp := event.OccurredAt
	var msg itip.Message

	switch event.Kind {
	case KindInvited, KindTimeChanged, KindDetailsChanged:
		msg = itip.FromEvent(itip.MethodRequest, event.Event, event.Invitations, stamp)
	case KindCancelled:
		msg = itip.FromEvent(itip.MethodCancel, event.Event, event.Invitations, stamp)
	case KindResponded:
		if event.Invitation == nil || event.Invitation.Status != invitation.StatusProposed {
			return nil, nil
		}
		counter, err := itip.Counter(event.Event, *event.Invitation, stamp)
		if err != nil {
			return nil, err
		}
		msg = counter
	case KindProposalDecided:
		if event.Invitation == nil || event.Invitation.Status != invitation.StatusDeclined {
			return nil, nil
		}
		msg = itip.FromEvent(itip.MethodDeclineCounter, event.Event, nil, stamp)
		msg.Comment = event.Invitation.ResponseNote
	default:
		return nil, nil
	}

	data, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return &mail.CalendarPart{ContentType: msg.MIMEType(), Data: data}, nil
}
