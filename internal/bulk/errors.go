package bulk

import "errors"

// Sentinel errors for bulk runs.
var (
	ErrListBusy    = errors.New("another bulk run holds this list")
	ErrRunNotFound = errors.New("bulk run not found")
	ErrNoContacts  = errors.New("no contact ids given")
)
