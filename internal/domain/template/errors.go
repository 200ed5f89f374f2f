package template

import "errors"

var (
	// ErrTemplateNotFound indicates the template doesn't exist.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidInput indicates invalid template input.
	ErrInvalidInput = errors.New("invalid template input")
	// ErrDuplicateItem indicates two items share an ID.
	ErrDuplicateItem = errors.New("duplicate template item")
	// ErrUnknownConditional indicates a conditional reference to a missing item.
	ErrUnknownConditional = errors.New("conditional references unknown item")
)
