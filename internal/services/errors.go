package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotShapefile      = errors.New("document is not a shapefile")
	ErrNoShapefileInfo   = errors.New("Shapefile info has not been loaded yet")
	ErrGardenNotFound    = errors.New("Garden not found. Please log in to access your saved gardens.")
	ErrNoGarden          = errors.New("Please create your own garden to get started.")
	ErrInvalidToken      = errors.New("The link is invalid. Please select a garden and re-request a link or contact us if in doubt.")
	ErrExpiredToken      = errors.New("The link has expired. Please re-request a link a new below contact us if in doubt.")
	ErrUnknownManager    = errors.New("Your e-mail address was not found. Are you sure this was registered? If so, please contact us and we will correct this.")
	ErrNoWikipedia       = errors.New("No wikipedia page found in the species profile")
	ErrUnknownLayer      = errors.New("unknown nearby layer")
	ErrPageNotPublished  = errors.New("This page is not currently published and not publicly available.")
	ErrNoVegetationType  = errors.New("We are unable to locate the relevant vegetation type. Please make sure to select a site on the map first, so that we can load the relevant plant species for your chosen location.")
	ErrMissingNameColumn = errors.New("There was a problem with your file. TIP: Make sure the 'Name' column is present.")
)

// ValidationError is returned when user input cannot be accepted
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
