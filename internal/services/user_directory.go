package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/calsched/internal/domain"
	"github.com/charlesng35/calsched/internal/models"
	"github.com/charlesng35/calsched/internal/repository"
	"github.com/charlesng35/calsched/internal/timewindow"
	"github.com/charlesng35/calsched/pkg/validator"
)

// CreateUserInput describes a directory entry to register.
type CreateUserInput struct {
	Email       string `json:"email" validate:"required,email,max=320"`
	DisplayName string `json:"display_name" validate:"max=255"`
	Timezone    string `json:"timezone" validate:"omitempty,timezone"`
}

// UpdateUserInput edits the caller's profile. Nil fields are left unchanged.
type UpdateUserInput struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=255"`
	Timezone    *string `json:"timezone" validate:"omitempty,timezone"`
}

// UserDirectory resolves participant references and authenticated actors.
type UserDirectory struct {
	repo repository.Repository
}

// NewUserDirectory constructs a UserDirectory backed by repo.
func NewUserDirectory(repo repository.Repository) (*UserDirectory, error) {
	if repo == nil {
		return nil, errors.New("user directory: repository is required")
	}
	return &UserDirectory{repo: repo}, nil
}

// Register adds a user. An empty timezone is stored as UTC.
func (d *UserDirectory) Register(ctx context.Context, input CreateUserInput) (*models.User, error) {
	input.Email = models.NormalizeEmail(input.Email)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Timezone = strings.TrimSpace(input.Timezone)

	if err := validateUserInput(input, input.Timezone); err != nil {
		return nil, err
	}

	user := &models.User{
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Timezone:    timewindow.ResolveTimezone(input.Timezone, "UTC"),
		IsActive:    true,
	}
	if err := d.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("user directory: register %s: %w", input.Email, err)
	}
	return user, nil
}

// Actor resolves an authenticated user id. Unknown and inactive users are not authorized.
func (d *UserDirectory) Actor(ctx context.Context, userID string) (Actor, error) {
	user, err := d.repo.GetUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Actor{}, fmt.Errorf("user directory: unknown user: %w", domain.ErrNotAuthorized)
		}
		return Actor{}, fmt.Errorf("user directory: resolve actor: %w", err)
	}
	if !user.IsActive {
		return Actor{}, fmt.Errorf("user directory: user %s is inactive: %w", user.ID, domain.ErrNotAuthorized)
	}
	return Actor{UserID: user.ID, Email: user.Email}, nil
}

// Get returns a user by id.
func (d *UserDirectory) Get(ctx context.Context, id string) (*models.User, error) {
	return d.repo.GetUser(ctx, id)
}

// GetByEmail returns a user by email, case-insensitively.
func (d *UserDirectory) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.repo.GetUserByEmail(ctx, email)
}

// List returns every user ordered by email.
func (d *UserDirectory) List(ctx context.Context) ([]models.User, error) {
	return d.repo.ListUsers(ctx)
}

// Update applies input to the actor's own entry. An empty timezone resets the zone to UTC.
func (d *UserDirectory) Update(ctx context.Context, actor Actor, input UpdateUserInput) (*models.User, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		input.DisplayName = &name
	}
	var tz string
	if input.Timezone != nil {
		tz = strings.TrimSpace(*input.Timezone)
		input.Timezone = &tz
	}
	if err := validateUserInput(input, tz); err != nil {
		return nil, err
	}

	user, err := d.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("user directory: load %s: %w", actor.UserID, err)
	}
	if input.DisplayName == nil && input.Timezone == nil {
		return user, nil
	}
	if input.DisplayName != nil {
		user.DisplayName = *input.DisplayName
	}
	if input.Timezone != nil {
		user.Timezone = timewindow.ResolveTimezone(tz, "UTC")
	}
	if err := d.repo.UpdateUserProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("user directory: update %s: %w", user.ID, err)
	}
	return user, nil
}

// validateUserInput maps a failed timezone rule onto ErrInvalidTimezone and every other failure
// onto ErrValidation.
func validateUserInput(input any, tz string) error {
	err := validator.ValidateStruct(input)
	if err == nil {
		return nil
	}
	var failures validator.ValidationErrors
	if errors.As(err, &failures) {
		for _, f := range failures {
			if f.Tag == "timezone" {
				return fmt.Errorf("user directory: timezone %q: %w", tz, domain.ErrInvalidTimezone)
			}
		}
	}
	return fmt.Errorf("user directory: %w: %w", domain.ErrValidation, err)
}
