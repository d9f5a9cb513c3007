// Package identity derives identity classes and manages the active session
// record. The administrator is determined by a fixed phone allow-list and a
// closed reserved-name set, never by a stored flag.
package identity

import (
	"strings"

	"tonygamingtz/pkg/domain"
)

// adminPhoneVariants are the accepted spellings of the administrator number.
var adminPhoneVariants = []string{
	"0612111793",   // original format
	"612111793",    // without leading 0
	"255612111793", // with country code
}

// reservedNames may not be claimed at sign-up and mark the administrator
// display name when matched case-insensitively.
var reservedNames = []string{
	"tonygamingtz",
	"TONYGAMINGTZ",
	"TonyGamingTZ",
	"admin",
	"support",
	"moderator",
}

// StripPhone removes every non-digit rune from a phone number.
func StripPhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsAdminPhone reports whether the digit-stripped phone number matches an
// administrator variant.
func IsAdminPhone(phone string) bool {
	clean := StripPhone(phone)
	if clean == "" {
		return false
	}
	for _, variant := range adminPhoneVariants {
		if clean == variant || phone == variant {
			return true
		}
	}
	return false
}

// IsReservedName reports whether the display name collides with the reserved
// set, compared case-insensitively.
func IsReservedName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, reserved := range reservedNames {
		if strings.EqualFold(reserved, name) {
			return true
		}
	}
	return false
}

// DeriveClass resolves the identity class from phone number and display name.
// A stored class is never trusted; callers pass the raw fields instead.
func DeriveClass(phone, displayName string) domain.IdentityClass {
	if IsAdminPhone(phone) || IsReservedName(displayName) {
		return domain.ClassAdministrator
	}
	if StripPhone(phone) != "" {
		return domain.ClassRegistered
	}
	return domain.ClassGuest
}

// IDForPhone builds the stable identity ID for a phone number. The
// administrator always maps to the reserved ID so the number itself is not
// exposed in record keys.
func IDForPhone(phone string) string {
	if IsAdminPhone(phone) {
		return domain.AdminID
	}
	return "user_" + StripPhone(phone)
}

// Normalize re-derives the advisory fields of an identity from its phone
// number and display name. Any mismatch between a stored class and the
// derivation resolves in favor of the derivation.
func Normalize(id domain.Identity) domain.Identity {
	id.Class = DeriveClass(id.PhoneNumber, id.DisplayName)
	id.ReservedName = IsReservedName(id.DisplayName)
	if id.Class == domain.ClassAdministrator {
		id.ID = domain.AdminID
		id.DisplayName = domain.AdminName
	}
	return id
}
