package totp

import "errors"

var (
	// ErrInvalidCodeFormat is returned when a candidate is not exactly six ASCII digits.
	ErrInvalidCodeFormat = errors.New("totp code must be exactly 6 digits")
	// ErrEmptySecret is returned when a secret has no key material.
	ErrEmptySecret = errors.New("totp secret is empty")
	// ErrMissingAccountName is returned when a provisioning label cannot be built.
	ErrMissingAccountName = errors.New("totp account name is required")
	// ErrQRCodeFailed is returned when the provisioning QR image cannot be rendered.
	ErrQRCodeFailed = errors.New("failed to generate totp qr code")
)
