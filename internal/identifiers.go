package internal

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxIdentifierLength bounds resource, feature and unit identifiers.
const DefaultMaxIdentifierLength = 256

type ResourceID struct {
	value string
}

func NewResourceID(value string, maxLength int) (ResourceID, error) {
	if err := validateIdentifier("resource", value, maxLength); err != nil {
		return ResourceID{}, err
	}
	return ResourceID{value: value}, nil
}

func (r ResourceID) ToString() string {
	return r.value
}

type AppFeature struct {
	value string
}

func NewAppFeature(value string, maxLength int) (AppFeature, error) {
	if err := validateIdentifier("feature", value, maxLength); err != nil {
		return AppFeature{}, err
	}
	return AppFeature{value: value}, nil
}

func (f AppFeature) ToString() string {
	return f.value
}

// UsageUnit is an opaque unit tag. Any identifier that validates is accepted.
type UsageUnit struct {
	value string
}

func NewUsageUnit(value string, maxLength int) (UsageUnit, error) {
	if err := validateIdentifier("unit", value, maxLength); err != nil {
		return UsageUnit{}, err
	}
	return UsageUnit{value: value}, nil
}

func (u UsageUnit) ToString() string {
	return u.value
}

func validateIdentifier(field, value string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = DefaultMaxIdentifierLength
	}
	if value == "" {
		return &InvalidInputError{Field: field, Reason: "is required"}
	}
	if len(value) > maxLength {
		return &InvalidInputError{Field: field, Reason: fmt.Sprintf("exceeds %d bytes", maxLength)}
	}
	if !utf8.ValidString(value) {
		return &InvalidInputError{Field: field, Reason: "is not valid UTF-8"}
	}
	for _, r := range value {
		if unicode.IsControl(r) {
			return &InvalidInputError{Field: field, Reason: "contains control characters"}
		}
	}
	return nil
}
