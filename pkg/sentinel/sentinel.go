package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and backend clients return
// these (optionally wrapped) so services can translate them into domain errors
// or typed outcomes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (no enrollment, no sample)
// - ErrExpired: session or block window has passed its deadline
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: external backend or resource temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
