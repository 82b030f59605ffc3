// SPDX-License-Identifier: Apache-2.0

package driver

import "errors"

var (
	// ErrMissingField is returned when a message is missing a field the
	// protocol requires for its type.
	ErrMissingField = errors.New("message missing required field")
	// ErrUnknownMessageType is returned for a "type" value outside
	// SCHEMA/RECORD/STATE/ACTIVATE_VERSION.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrStreamNotRegistered is returned when a RECORD message names a
	// stream with no prior SCHEMA.
	ErrStreamNotRegistered = errors.New("message for unregistered stream")
)
