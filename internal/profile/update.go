package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Update describes a change to the profile. Nil fields are left untouched;
// a non-nil pointer to "" clears the field.
type Update struct {
	Name       *string `json:"nombre,omitempty"`
	Specialty  *string `json:"especialidad,omitempty"`
	License    *string `json:"matricula,omitempty"`
	Contact    *string `json:"contacto,omitempty"`
	Letterhead *string `json:"logoBase64,omitempty"`
	Signature  *string `json:"firmaBase64,omitempty"`
}

// Apply returns a new profile holding current's values overridden by u.
// current may be nil when nothing has been saved yet; it is never modified.
// Text fields are trimmed and images are normalised with [NormalizeImage].
func Apply(current *Profile, u Update, now time.Time) (*Profile, error) {
	var next Profile
	if current != nil {
		next = *current
	}

	setText(&next.Name, u.Name)
	setText(&next.Specialty, u.Specialty)
	setText(&next.License, u.License)
	setText(&next.Contact, u.Contact)

	if u.Letterhead != nil {
		img, err := normalizeField("logoBase64", *u.Letterhead)
		if err != nil {
			return nil, err
		}
		next.Letterhead = img
	}
	if u.Signature != nil {
		img, err := normalizeField("firmaBase64", *u.Signature)
		if err != nil {
			return nil, err
		}
		next.Signature = img
	}

	next.UpdatedAt = now.UTC()
	return &next, nil
}

func setText(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func normalizeField(field, dataURL string) (string, error) {
	if strings.TrimSpace(dataURL) == "" {
		return "", nil
	}
	img, err := NormalizeImage(dataURL)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: err.Error()}
	}
	return img, nil
}

// Service serialises profile updates over a [Store].
type Service struct {
	store Store
	now   func() time.Time

	mu sync.Mutex
}

// NewService returns a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Get returns the stored profile or [ErrNotConfigured].
func (s *Service) Get(ctx context.Context) (*Profile, error) {
	return s.store.Load(ctx)
}

// Update loads the current profile, derives the next one from u, validates it
// and persists it. The stored record is replaced only when every step
// succeeds.
func (s *Service) Update(ctx context.Context, u Update) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return nil, fmt.Errorf("profile: load: %w", err)
	}

	next, err := Apply(current, u, s.now())
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("profile: save: %w", err)
	}

	slog.Info("physician profile updated",
		"name", next.Name,
		"letterhead", next.HasLetterhead(),
		"signature", next.HasSignature(),
	)
	return next, nil
}
