package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/cystoscribe/internal/profile"
	"github.com/MrWong99/cystoscribe/internal/report"
)

// ProfileSource supplies the current physician profile. [*profile.Service]
// satisfies it.
type ProfileSource interface {
	Get(ctx context.Context) (*profile.Profile, error)
}

// ComposeText parses text and lays it out with the profile currently held by
// src. A source without a profile yields [ErrConfigurationMissing].
func (c *Composer) ComposeText(ctx context.Context, src ProfileSource, patient Patient, text string) (*Plan, error) {
	prof, err := src.Get(ctx)
	if err != nil && !errors.Is(err, profile.ErrNotConfigured) {
		return nil, fmt.Errorf("document: load profile: %w", err)
	}
	return c.Compose(prof, patient, report.Parse(text))
}
