package whatsapp

import "errors"

var (
	// ErrNotConnected is returned when a send is attempted while the
	// session is not open. No network activity happens in that case.
	ErrNotConnected = errors.New("session is not connected")

	// ErrRecipientNotFound is returned when the recipient number does
	// not exist on WhatsApp under any accepted normalization.
	ErrRecipientNotFound = errors.New("recipient is not on whatsapp")
)
