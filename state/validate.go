package state

import (
	"github.com/go-playground/validator/v10"
)

// One shared validator instance for every slice boundary. Resource packages
// used to each carry their own hand-rolled isValidX guard; those drifted out
// of sync, so shape checking now happens here and nowhere else.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate runs the shared shape check over a payload about to enter a
// slice. Failures come back as KindValidation errors; the caller logs them
// and leaves the previously cached data untouched.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		if ferrs, ok := err.(validator.ValidationErrors); ok && len(ferrs) > 0 {
			f := ferrs[0]
			return NewError(KindValidation, "invalid "+f.StructNamespace()+" ("+f.Tag()+")")
		}
		return NewError(KindValidation, err.Error())
	}
	return nil
}

// ValidateEntity additionally rejects entities with an empty id, which the
// struct tags alone cannot express for embedded shapes.
func ValidateEntity(e Entity) error {
	if e.EntityID() == "" {
		return NewError(KindValidation, "entity is missing an id")
	}
	return Validate(e)
}
