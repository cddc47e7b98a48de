// Package identity describes how tests and SUTs are recorded: a stable UID
// plus the parameters they were constructed with.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingUID is returned when an object has an empty UID.
	ErrMissingUID = errors.New("uid is empty")

	// ErrMissingInitialization is returned when an object has no initialization record.
	ErrMissingInitialization = errors.New("initialization record is missing")
)

// InitializationRecord captures enough information to reconstruct an object:
// its type and the arguments it was created with.
type InitializationRecord struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// IsZero reports whether the record was never filled in.
func (r InitializationRecord) IsZero() bool {
	return r.Type == ""
}

// Identified is implemented by every test and SUT.
type Identified interface {
	UID() string
	InitializationRecord() InitializationRecord
}

// Validate checks that obj can be recorded.
func Validate(obj Identified) error {
	if obj == nil {
		return fmt.Errorf("object is nil")
	}
	if obj.UID() == "" {
		return fmt.Errorf("%T: %w", obj, ErrMissingUID)
	}
	if obj.InitializationRecord().IsZero() {
		return fmt.Errorf("%s: %w", obj.UID(), ErrMissingInitialization)
	}
	return nil
}

// SafeName turns a UID into a string usable as a file or directory name.
// Distinct UIDs may share a SafeName; use StorageName where they must not.
func SafeName(uid string) string {
	return unsafeChars.Replace(uid)
}

// StorageName is a file or directory name unique to uid: its SafeName
// followed by a short hash of the UID itself. It never resolves to "." or "..".
func StorageName(uid string) string {
	sum := sha256.Sum256([]byte(uid))
	return SafeName(uid) + "-" + hex.EncodeToString(sum[:])[:12]
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
)
