package profile

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists the single physician profile record.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the stored profile, or [ErrNotConfigured] when none exists.
	Load(ctx context.Context) (*Profile, error)

	// Save replaces the stored profile with p.
	Save(ctx context.Context, p *Profile) error

	// Ping verifies the underlying database is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

func encode(p *Profile) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("profile: marshal: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: unmarshal: %w", err)
	}
	return &p, nil
}
