package events

import "errors"

// Scroll milestones in ascending order
var Milestones = []int{25, 50, 75, 100}

// Input limits
const (
	MaxPathLength    = 2048
	MaxSectionLength = 100
)

// Cookieless device labels; anything else is stored as BasicDeviceOther
const (
	BasicDeviceDesktop = "desktop"
	BasicDeviceMobile  = "mobile"
	BasicDeviceTablet  = "tablet"
	BasicDeviceOther   = "other"
)

var (
	// ErrVisitNotFound is returned when no visit can be resolved for a session.
	ErrVisitNotFound = errors.New("visit not found")

	// ErrBotTraffic marks a visit from a crawler that was intentionally not stored.
	ErrBotTraffic = errors.New("bot traffic ignored")

	// ErrExcludedIP marks a visit from an excluded address that was intentionally not stored.
	ErrExcludedIP = errors.New("excluded ip ignored")

	// ErrInvalidInput wraps every validation failure on tracking input.
	ErrInvalidInput = errors.New("invalid tracking input")
)
