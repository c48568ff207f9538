// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. They are similar to classes in
// other languages, but without inheritance: Go favours composition.
package model

import (
	"strings"
	"time"
)

// Contact is a personal contact record owned by exactly one user.
//
// UserID is never serialised: a contact is only ever returned to its owner,
// so echoing the owner's id back adds nothing.
type Contact struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phone_number"`
	Birthday       Date      `json:"birthday"`
	AdditionalData *string   `json:"additional_data"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ContactInput is the body of a create request.
//
// The `validate` tags are read by go-playground/validator in the service
// layer. Birthday is a pointer so that `required` can tell "missing" from
// the zero date.
type ContactInput struct {
	FirstName      string  `json:"first_name"      validate:"required,min=1,max=50"`
	LastName       string  `json:"last_name"       validate:"required,min=1,max=50"`
	Email          string  `json:"email"           validate:"required,email"`
	PhoneNumber    string  `json:"phone_number"    validate:"required,min=10,max=15"`
	Birthday       *Date   `json:"birthday"        validate:"required"`
	AdditionalData *string `json:"additional_data" validate:"omitempty,max=250"`
}

// Normalize trims surrounding whitespace from every text field.
func (in *ContactInput) Normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	if in.AdditionalData != nil {
		trimmed := strings.TrimSpace(*in.AdditionalData)
		in.AdditionalData = &trimmed
	}
}

// ToContact builds an unsaved Contact owned by userID.
func (in ContactInput) ToContact(userID string) *Contact {
	c := &Contact{
		UserID:         userID,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		PhoneNumber:    in.PhoneNumber,
		AdditionalData: in.AdditionalData,
	}
	if in.Birthday != nil {
		c.Birthday = *in.Birthday
	}
	return c
}

// ContactPatch is a sparse update: nil fields are left untouched.
//
// PARTIAL UPDATES WITH POINTERS:
// A plain string can't distinguish "not sent" from "sent as empty", so every
// field is a pointer. JSON decoding leaves absent keys as nil.
type ContactPatch struct {
	FirstName      *string `json:"first_name"      validate:"omitempty,min=1,max=50"`
	LastName       *string `json:"last_name"       validate:"omitempty,min=1,max=50"`
	Email          *string `json:"email"           validate:"omitempty,email"`
	PhoneNumber    *string `json:"phone_number"    validate:"omitempty,min=10,max=15"`
	Birthday       *Date   `json:"birthday"`
	AdditionalData *string `json:"additional_data" validate:"omitempty,max=250"`
}

// Normalize trims surrounding whitespace from every supplied text field.
func (p *ContactPatch) Normalize() {
	for _, f := range []**string{&p.FirstName, &p.LastName, &p.Email, &p.PhoneNumber, &p.AdditionalData} {
		if *f != nil {
			trimmed := strings.TrimSpace(**f)
			*f = &trimmed
		}
	}
}

// IsEmpty reports whether the patch would change nothing.
func (p ContactPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil &&
		p.PhoneNumber == nil && p.Birthday == nil && p.AdditionalData == nil
}

// Apply merges the supplied patch fields onto c. Absent fields keep their
// current value.
func (c *Contact) Apply(p ContactPatch) {
	if p.FirstName != nil {
		c.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		c.LastName = *p.LastName
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.PhoneNumber != nil {
		c.PhoneNumber = *p.PhoneNumber
	}
	if p.Birthday != nil {
		c.Birthday = *p.Birthday
	}
	if p.AdditionalData != nil {
		note := *p.AdditionalData
		c.AdditionalData = &note
	}
}

// SearchCriteria selects contacts matching ANY of the non-empty fields.
type SearchCriteria struct {
	FirstName string
	LastName  string
	Email     string
}

// IsEmpty reports whether no criterion was supplied.
func (s SearchCriteria) IsEmpty() bool {
	return s.FirstName == "" && s.LastName == "" && s.Email == ""
}

// MonthDayKey returns month*100 + day for t.
func MonthDayKey(t time.Time) int {
	return int(t.Month())*100 + t.Day()
}

// BirthdayWindow is an inclusive (month, day) interval that ignores the year.
//
// Bounds are compared month first, then day, as the ordinal month*100+day.
// There is no calendar interpolation: keys such as 230 (Feb 30) sort
// between 229 and 301 even though that day never exists.
//
// If End falls in a later year than Start the window wraps through
// December 31 and matches keys >= Start OR <= End.
type BirthdayWindow struct {
	Start time.Time
	End   time.Time
}

// UpcomingWindow returns the window [from, from+days].
func UpcomingWindow(from time.Time, days int) BirthdayWindow {
	return BirthdayWindow{Start: from, End: from.AddDate(0, 0, days)}
}

// Wraps reports whether the window crosses a year boundary.
func (w BirthdayWindow) Wraps() bool {
	return w.End.Year() > w.Start.Year()
}

// Keys returns the start and end ordinals.
func (w BirthdayWindow) Keys() (start, end int) {
	return MonthDayKey(w.Start), MonthDayKey(w.End)
}

// Contains reports whether a birthday falls inside the window.
func (w BirthdayWindow) Contains(birthday Date) bool {
	key := birthday.MonthDayKey()
	start, end := w.Keys()
	if w.Wraps() {
		return key >= start || key <= end
	}
	return key >= start && key <= end
}
