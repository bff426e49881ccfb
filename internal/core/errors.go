// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers match them with errors.Is; packages wrap them
// with fmt.Errorf("...: %w") to add context.
var (
	// Addressing errors
	ErrInvalidAddress = errors.New("lansim: invalid address")

	// Packet decoding errors
	ErrPacketTooShort = errors.New("lansim: packet too short")

	// Switch configuration errors
	ErrPortOutOfRange = errors.New("lansim: switch port out of range")
	ErrPortInUse      = errors.New("lansim: switch port already connected")
	ErrAlreadyPowered = errors.New("lansim: switch already powered up")
	ErrNotPowered     = errors.New("lansim: switch not powered up")
	ErrDuplicateAddr  = errors.New("lansim: address already attached")
	ErrHostNotFound   = errors.New("lansim: host not found")
	ErrConfigInvalid  = errors.New("lansim: invalid configuration")
	ErrNotConnected   = errors.New("lansim: host not connected to a switch port")

	// A blocking hand-off was abandoned because its context ended.
	ErrInterrupted = errors.New("lansim: wait interrupted")
)
