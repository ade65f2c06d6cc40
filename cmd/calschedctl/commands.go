package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/charlesng35/calsched/internal/app/maintenance"
	iauth "github.com/charlesng35/calsched/internal/auth"
	"github.com/charlesng35/calsched/internal/availability"
	"github.com/charlesng35/calsched/internal/notify"
	"github.com/charlesng35/calsched/internal/services"
	"github.com/charlesng35/calsched/internal/timewindow"
	"github.com/charlesng35/calsched/pkg/mail"
)

func userCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage the user directory.",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Register a user.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Display name"},
					&cli.StringFlag{Name: "timezone", Value: "UTC", Usage: "IANA timezone"},
				},
				Action: func(c *cli.Context) error {
					users, err := s.users()
					if err != nil {
						return err
					}
					user, err := users.Register(c.Context, services.CreateUserInput{
						Email:       c.String("email"),
						DisplayName: c.String("name"),
						Timezone:    c.String("timezone"),
					})
					if err != nil {
						return err
					}
					return s.printJSON(user)
				},
			},
			{
				Name:  "list",
				Usage: "List registered users.",
				Action: func(c *cli.Context) error {
					users, err := s.users()
					if err != nil {
						return err
					}
					list, err := users.List(c.Context)
					if err != nil {
						return err
					}
					return s.printJSON(list)
				},
			},
		},
	}
}

func tokenCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue API access tokens.",
		Subcommands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue an access token for a registered user.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime; defaults to auth.jwt.access_token_ttl"},
				},
				Action: func(c *cli.Context) error {
					users, err := s.users()
					if err != nil {
						return err
					}
					user, err := users.GetByEmail(c.Context, c.String("email"))
					if err != nil {
						return err
					}
					if !user.IsActive {
						return fmt.Errorf("user %s is inactive", user.Email)
					}
					jwtSvc, err := s.jwtService(c.Context)
					if err != nil {
						return err
					}
					token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{
						UserID: user.ID,
						Email:  user.Email,
						TTL:    c.Duration("ttl"),
					})
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(s.out, token)
					return err
				},
			},
		},
	}
}

func boundariesCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "boundaries",
		Usage: "Print the UTC bounds of a local day, week or month.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "unit", Value: "day", Usage: "day, week or month"},
			&cli.StringFlag{Name: "date", Required: true, Usage: "Civil date as YYYY-MM-DD"},
			&cli.StringFlag{Name: "timezone", Required: true, Usage: "IANA timezone"},
			&cli.StringFlag{Name: "week-start", Value: "monday"},
		},
		Action: func(c *cli.Context) error {
			unit, err := timewindow.ParseUnit(c.String("unit"))
			if err != nil {
				return err
			}
			date, err := timewindow.ParseDate(c.String("date"))
			if err != nil {
				return err
			}
			weekStart, err := timewindow.ParseWeekday(c.String("week-start"))
			if err != nil {
				return err
			}
			bounds, err := services.NewCalendarService().ComputeBoundaries(unit, date, c.String("timezone"), weekStart)
			if err != nil {
				return err
			}
			return s.printJSON(bounds)
		},
	}
}

func slotsCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "slots",
		Usage: "Find meeting slots where every participant is free.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "participant", Aliases: []string{"p"}, Required: true, Usage: "Participant email; repeatable"},
			&cli.TimestampFlag{Name: "start", Layout: time.RFC3339, Required: true},
			&cli.TimestampFlag{Name: "end", Layout: time.RFC3339, Required: true},
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Minute},
			&cli.DurationFlag{Name: "step", Usage: "Candidate spacing; defaults to scheduling.slot_step"},
			&cli.IntFlag{Name: "limit", Value: 5},
		},
		Action: func(c *cli.Context) error {
			store, err := s.openStore()
			if err != nil {
				return err
			}
			searcherCfg, err := s.cfg.Scheduling.SearcherConfig()
			if err != nil {
				return err
			}
			svc, err := services.NewAvailabilityService(store, availability.NewSearcher(searcherCfg),
				services.WithAvailabilityMaxSlots(s.cfg.Scheduling.MaxSlots))
			if err != nil {
				return err
			}

			var participants []string
			for _, p := range c.StringSlice("participant") {
				for _, part := range strings.Split(p, ",") {
					if part = strings.TrimSpace(part); part != "" {
						participants = append(participants, part)
					}
				}
			}

			result, err := svc.FindMeetingSlots(c.Context, services.FindSlotsInput{
				Participants: participants,
				WindowStart:  *c.Timestamp("start"),
				WindowEnd:    *c.Timestamp("end"),
				Duration:     c.Duration("duration"),
				Step:         c.Duration("step"),
				Limit:        c.Int("limit"),
			})
			if err != nil {
				return err
			}
			return s.printJSON(result)
		},
	}
}

func maintenanceCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "maintenance",
		Usage: "Run background jobs on demand.",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Send due reminders and purge expired cancelled events once.",
				Action: func(c *cli.Context) error {
					store, err := s.openStore()
					if err != nil {
						return err
					}

					publishers := notify.Multi{notify.Named("store", notify.NewStorePublisher(store, nil))}
					if s.cfg.Email.SMTP.Enabled {
						settings := s.cfg.Email.SMTPSettings()
						mailer, err := mail.NewSMTPMailer(settings)
						if err != nil {
							return err
						}
						publishers = append(publishers, notify.Named("mail", notify.NewMailPublisher(mailer, settings.From)))
					}

					reminders, err := services.NewReminderService(store,
						services.WithReminderLead(s.cfg.Reminders.LeadTime),
						services.WithReminderPublisher(publishers))
					if err != nil {
						return err
					}
					cleaner := maintenance.NewCleaner(reminders, store, maintenance.WithRetention(s.cfg.Retention.RetentionWindow()))
					if err := cleaner.RunOnce(c.Context); err != nil {
						return err
					}
					_, err = fmt.Fprintln(s.out, "maintenance complete")
					return err
				},
			},
		},
	}
}

func (s *session) users() (*services.UserDirectory, error) {
	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	return services.NewUserDirectory(store)
}
