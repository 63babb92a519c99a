package query

import "errors"

var (
	// ErrInvalidDateFormat is returned for a from/to date that does not
	// follow yyyy-MM-ddTHH:mm:ss. The message is part of the API contract.
	ErrInvalidDateFormat = errors.New("Incorrect date format, should be yyyy-MM-dd'T'HH:mm:ss")

	// ErrMultipleUnits is returned when an average spans more than one unit
	ErrMultipleUnits = errors.New("Multiple different units in aggregation!")
)
