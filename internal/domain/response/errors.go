package response

import "errors"

var (
	// ErrUnknownItem indicates the item is not part of the loaded template.
	ErrUnknownItem = errors.New("item not in template")
	// ErrUnknownOption indicates the option is not offered by the item.
	ErrUnknownOption = errors.New("option not offered by item")
	// ErrDerivedField indicates a computed item was edited directly.
	ErrDerivedField = errors.New("item value is computed")
)
