// Package profile manages the birth profiles the assistant creates and
// consults: validated records of name, birth date, time, and resolved place,
// each stamped with a reference ID and a computed sun sign.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/astro"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// Place is a resolved birth place with coordinates and timezone
	Place struct {
		Name      string  `json:"name"`
		Region    string  `json:"region,omitempty"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	}

	// Profile is one stored birth profile
	Profile struct {
		ID        string     `json:"id"`
		UserID    api.UserID `json:"user_id"`
		Name      string     `json:"name"`
		BirthDate string     `json:"birth_date"`
		BirthTime string     `json:"birth_time"`
		Place     Place      `json:"place"`
		SunSign   astro.Sign `json:"sun_sign"`
		CreatedAt time.Time  `json:"created_at"`
	}

	// Service validates and stores profiles
	Service struct {
		store Store
	}
)

// TimeLayout is the wire format for birth times
const TimeLayout = "15:04"

var (
	ErrInvalidUser      = errors.New("invalid user ID")
	ErrMissingName      = errors.New("profile name is required")
	ErrMissingPlace     = errors.New("birth place is required")
	ErrInvalidBirthTime = errors.New("invalid birth time")
)

// Label renders the place for display, most specific part first
func (p Place) Label() string {
	parts := []string{p.Name}
	if p.Region != "" {
		parts = append(parts, p.Region)
	}
	if p.Country != "" && p.Country != p.Name {
		parts = append(parts, p.Country)
	}
	return strings.Join(parts, ", ")
}

// NewService creates a profile service on top of the given store
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create validates the draft, stamps a reference ID and the computed sun
// sign, and persists the profile
func (s *Service) Create(
	ctx context.Context, draft *Profile,
) (*Profile, error) {
	if draft == nil || draft.UserID == "" {
		return nil, ErrInvalidUser
	}
	if strings.TrimSpace(draft.Name) == "" {
		return nil, ErrMissingName
	}
	if draft.Place.Name == "" {
		return nil, ErrMissingPlace
	}
	sign, err := astro.SunSignFromDate(draft.BirthDate)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(TimeLayout, draft.BirthTime); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBirthTime,
			draft.BirthTime)
	}

	res := *draft
	res.ID = NewID()
	res.Name = strings.TrimSpace(draft.Name)
	res.SunSign = sign
	res.CreatedAt = time.Now()

	if err := s.store.Put(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the user's profiles, oldest first
func (s *Service) List(
	ctx context.Context, userID api.UserID,
) ([]*Profile, error) {
	return s.store.FindByUser(ctx, userID)
}

// Get returns the user's profile with the given reference ID
func (s *Service) Get(
	ctx context.Context, userID api.UserID, id string,
) (*Profile, error) {
	all, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// FindByName returns the user's profile matching the given name,
// case-insensitively
func (s *Service) FindByName(
	ctx context.Context, userID api.UserID, name string,
) (*Profile, bool, error) {
	all, err := s.store.FindByUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true, nil
		}
	}
	return nil, false, nil
}

// NewID generates a profile reference ID
func NewID() string {
	return "prof_" + uuid.NewString()[:8]
}
