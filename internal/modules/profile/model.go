// README: Profile record, roles and account states.
package profile

import (
	"time"

	"bagdrop/internal/types"
)

type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusPending     AccountStatus = "pending"
	StatusDeactivated AccountStatus = "deactivated"
	StatusOffline     AccountStatus = "offline"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusDeactivated, StatusOffline:
		return true
	}
	return false
}

type Verification string

const (
	Unverified          Verification = "unverified"
	VerificationPending Verification = "pending"
	Verified            Verification = "verified"
	Rejected            Verification = "rejected"
)

func (v Verification) Valid() bool {
	switch v {
	case Unverified, VerificationPending, Verified, Rejected:
		return true
	}
	return false
}

type Profile struct {
	ID                     types.ID      `json:"id"`
	Role                   types.Role    `json:"role"`
	Status                 AccountStatus `json:"account_status"`
	Verification           Verification  `json:"verification_status"`
	FirstName              string        `json:"first_name"`
	MiddleInitial          string        `json:"middle_initial"`
	LastName               string        `json:"last_name"`
	Email                  string        `json:"email"`
	ContactNumber          string        `json:"contact_number"`
	EmergencyContactName   string        `json:"emergency_contact_name"`
	EmergencyContactNumber string        `json:"emergency_contact_number"`
	CorporationID          *types.ID     `json:"corporation_id,omitempty"`
	PictureURL             string        `json:"picture_url"`
	LastSignInAt           *time.Time    `json:"last_sign_in_at,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
	UpdatedAt              time.Time     `json:"updated_at"`
}

// SelfUpdate holds the fields a user may change on their own profile.
// Nil fields are left alone.
type SelfUpdate struct {
	FirstName              *string
	MiddleInitial          *string
	LastName               *string
	ContactNumber          *string
	EmergencyContactName   *string
	EmergencyContactNumber *string
}

// AdminUpdate holds the fields only administrators may change.
type AdminUpdate struct {
	Role          *types.Role
	Status        *AccountStatus
	Verification  *Verification
	CorporationID *types.ID
}

type Filter struct {
	Role         *types.Role
	Status       *AccountStatus
	Verification *Verification
	Limit        int
}
