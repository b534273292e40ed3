package model

import "errors"

var (
	// ErrOrderNotFound is returned when no order matches an extracted
	// reference number.
	ErrOrderNotFound = errors.New("order not found")

	// ErrAlreadyProcessed is returned when a ledger row already exists for
	// a message ID.
	ErrAlreadyProcessed = errors.New("message already processed")

	// ErrCycleRunning is returned when a poll cycle is requested while one
	// is still in flight.
	ErrCycleRunning = errors.New("processing cycle already running")
)
