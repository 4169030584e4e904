package core

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxNameLength bounds the length of a specification name, in runes.
const MaxNameLength = 200

var singleLine = regexp.MustCompile(`^[^\r\n]*$`)

// Validate checks the invariants a specification must hold before it is
// applied to a collection. Failures wrap ErrValidationFailed.
func Validate(spec Specification) error {
	err := validation.ValidateStruct(&spec,
		validation.Field(&spec.ID,
			validation.Required.Error("cannot be empty"),
		),
		validation.Field(&spec.Name,
			validation.Match(singleLine).Error("cannot contain line breaks"),
			validation.RuneLength(0, MaxNameLength).Error(fmt.Sprintf("must be at most %d characters", MaxNameLength)),
		),
		validation.Field(&spec.Emoji,
			validation.RuneLength(0, 8).Error("must be a short string"),
		),
		validation.Field(&spec.DateCreated,
			validation.Required.Error("is required"),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}
