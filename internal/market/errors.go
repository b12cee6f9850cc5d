package market

import "errors"

// Placement validation failures. Each is raised before any reservation is
// made, so a rejected order leaves no partial state behind.
var (
	ErrInsufficientFunds     = errors.New("market: insufficient unreserved cash")
	ErrInsufficientInventory = errors.New("market: insufficient unreserved inventory")
	ErrRegionMismatch        = errors.New("market: company has no presence in region")
	ErrTierLocked            = errors.New("market: item tier not unlocked by company research")
)
