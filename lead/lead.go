// Package lead holds the lead-capture domain model: leads, booth staff,
// temperature classification, validation, and the temporary-id scheme used
// for records created before remote acknowledgment.
package lead

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Temperature is the lead-qualification classification assigned by staff.
type Temperature string

const (
	Hot      Temperature = "hot"
	Warm     Temperature = "warm"
	Browsing Temperature = "browsing"
)

// Valid reports whether t is one of the enumerated temperature values.
func (t Temperature) Valid() bool {
	switch t {
	case Hot, Warm, Browsing:
		return true
	}
	return false
}

// Temperatures lists the valid classifications in display order.
func Temperatures() []Temperature {
	return []Temperature{Hot, Warm, Browsing}
}

// TempIDPrefix marks locally-generated identifiers. A record whose id
// carries this prefix has never been acknowledged by the remote store.
const TempIDPrefix = "local-"

// NewTempID mints a temporary identifier for an optimistic create.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a locally-generated temporary identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Lead is one captured visitor contact.
type Lead struct {
	ID          string      `json:"id"`
	ShowID      string      `json:"showId"`
	ContactName string      `json:"contactName"`
	StoreName   string      `json:"storeName"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	ZipCode     string      `json:"zipCode,omitempty"`
	City        string      `json:"city,omitempty"`
	State       string      `json:"state,omitempty"`
	Interests   []string    `json:"interests,omitempty"`
	Temperature Temperature `json:"temperature"`
	Notes       string      `json:"notes,omitempty"`
	VoiceNote   string      `json:"voiceNote,omitempty"`
	CreatedBy   string      `json:"createdBy,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt,omitempty"`
}

// Synced reports whether the lead carries a server-assigned identifier.
func (l Lead) Synced() bool {
	return l.ID != "" && !IsTempID(l.ID)
}

// User is one booth staff member.
type User struct {
	ID        string    `json:"id"`
	ShowID    string    `json:"showId"`
	Name      string    `json:"name"`
	Passcode  string    `json:"passcode"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidationError reports missing or invalid required fields on a create
// or update, before any write is attempted.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid lead: %s", strings.Join(e.Fields, ", "))
}

// Validate checks the required fields of a lead. It returns a
// *ValidationError listing every violation, or nil.
func Validate(l Lead) error {
	var fields []string
	if strings.TrimSpace(l.ContactName) == "" {
		fields = append(fields, "contactName")
	}
	if strings.TrimSpace(l.StoreName) == "" {
		fields = append(fields, "storeName")
	}
	if !l.Temperature.Valid() {
		fields = append(fields, "temperature")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Update is a partial lead edit. Nil fields are left untouched.
type Update struct {
	ContactName *string
	StoreName   *string
	Email       *string
	Phone       *string
	ZipCode     *string
	City        *string
	State       *string
	Interests   *[]string
	Temperature *Temperature
	Notes       *string
	VoiceNote   *string
}

// Empty reports whether the update carries no fields.
func (u Update) Empty() bool {
	return u == Update{}
}

// Apply merges the update into l and stamps UpdatedAt.
func (u Update) Apply(l *Lead, now time.Time) {
	if u.ContactName != nil {
		l.ContactName = *u.ContactName
	}
	if u.StoreName != nil {
		l.StoreName = *u.StoreName
	}
	if u.Email != nil {
		l.Email = *u.Email
	}
	if u.Phone != nil {
		l.Phone = *u.Phone
	}
	if u.ZipCode != nil {
		l.ZipCode = *u.ZipCode
	}
	if u.City != nil {
		l.City = *u.City
	}
	if u.State != nil {
		l.State = *u.State
	}
	if u.Interests != nil {
		l.Interests = *u.Interests
	}
	if u.Temperature != nil {
		l.Temperature = *u.Temperature
	}
	if u.Notes != nil {
		l.Notes = *u.Notes
	}
	if u.VoiceNote != nil {
		l.VoiceNote = *u.VoiceNote
	}
	l.UpdatedAt = now
}

// Validate checks that the update does not clear required fields.
func (u Update) Validate() error {
	var fields []string
	if u.ContactName != nil && strings.TrimSpace(*u.ContactName) == "" {
		fields = append(fields, "contactName")
	}
	if u.StoreName != nil && strings.TrimSpace(*u.StoreName) == "" {
		fields = append(fields, "storeName")
	}
	if u.Temperature != nil && !u.Temperature.Valid() {
		fields = append(fields, "temperature")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Ptr is a convenience for building Update literals.
func Ptr[T any](v T) *T { return &v }
