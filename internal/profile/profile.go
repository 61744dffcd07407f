// Package profile stores the physician profile used to letterhead and sign
// every report: name, specialty, license number, contact details and the
// letterhead and signature images.
//
// The profile is a single key/value record. [Store] implementations persist
// it wholesale; changes go through [Apply], which derives a new record from
// the current one instead of editing it in place, and [Service.Update], which
// runs load → apply → validate → save.
//
// Two stores ship with the package: [SQLiteStore] for single-machine
// deployments and [PostgresStore] for a shared database.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordKey is the key under which the profile record is persisted.
const RecordKey = "medico_config"

// ErrNotConfigured is returned by [Store.Load] when no profile has been saved
// yet. Callers should send the user to the configuration screen.
var ErrNotConfigured = errors.New("profile: not configured")

// Profile is the physician's letterhead and signature data. Images are data
// URLs ("data:image/png;base64,...") so the record stays a single JSON value.
type Profile struct {
	Name      string `json:"nombre"`
	Specialty string `json:"especialidad"`
	License   string `json:"matricula,omitempty"`
	Contact   string `json:"contacto,omitempty"`

	// Letterhead is the header image drawn across the top of the page.
	Letterhead string `json:"logoBase64,omitempty"`

	// Signature is drawn above the signature line.
	Signature string `json:"firmaBase64,omitempty"`

	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// ValidationError reports a missing or malformed profile field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("profile: %s %s", e.Field, e.Reason)
}

// Validate checks the fields required to sign a report. Name and specialty are
// mandatory; images, when present, must be decodable data URLs.
func (p *Profile) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, &ValidationError{Field: "nombre", Reason: "is required"})
	}
	if strings.TrimSpace(p.Specialty) == "" {
		errs = append(errs, &ValidationError{Field: "especialidad", Reason: "is required"})
	}
	if p.Letterhead != "" {
		if _, err := DecodeImage(p.Letterhead); err != nil {
			errs = append(errs, &ValidationError{Field: "logoBase64", Reason: err.Error()})
		}
	}
	if p.Signature != "" {
		if _, err := DecodeImage(p.Signature); err != nil {
			errs = append(errs, &ValidationError{Field: "firmaBase64", Reason: err.Error()})
		}
	}
	return errors.Join(errs...)
}

// HasLetterhead reports whether a letterhead image is configured.
func (p *Profile) HasLetterhead() bool { return p != nil && p.Letterhead != "" }

// HasSignature reports whether a signature image is configured.
func (p *Profile) HasSignature() bool { return p != nil && p.Signature != "" }
