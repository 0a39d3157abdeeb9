package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrInvalidAddress   = errors.New("invalid email address")
	ErrAddressTooLong   = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
)

// RFC 5322 length limits.
const (
	MaxAddressLength   = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
)

var addressDomainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?)*$`)

// ValidateAddress checks one recipient or sender address. Rejecting bad
// addresses locally avoids burning a provider attempt on a request it will
// refuse anyway.
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)

	if len(address) > MaxAddressLength {
		return ErrAddressTooLong
	}
	if _, err := mail.ParseAddress(address); err != nil {
		return ErrInvalidAddress
	}

	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return ErrInvalidAddress
	}
	local, domain := address[:at], address[at+1:]

	if len(local) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !addressDomainRegex.MatchString(domain) || !strings.Contains(domain, ".") {
		return ErrInvalidAddress
	}

	return nil
}
