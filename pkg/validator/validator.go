package validator

import (
	"context"
	"regexp"

	"github.com/go-playground/validator"
)

var (
	global    *validator.Validate
	hhmmRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
)

// AgeBrackets is the closed set of accepted age-bracket labels.
var AgeBrackets = []string{"12-13", "14-17", "18-21", "22-35", "36+"}

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("fascia", validateAgeBracket)
	_ = v.RegisterValidation("hhmm", validateArrivalTime)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validateAgeBracket(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, b := range AgeBrackets {
		if value == b {
			return true
		}
	}
	return false
}

func validateArrivalTime(fl validator.FieldLevel) bool {
	return hhmmRegex.MatchString(fl.Field().String())
}

// FieldError reports the first violated rule of a struct validation.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	var msg string
	switch e.Tag {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "fascia":
		msg = "Value is not an accepted age bracket"
	case "hhmm":
		msg = ErrInvalidFormat
	default:
		msg = ErrUnknownValidation
	}
	return msg + ": " + e.Field
}

// Validate checks structure and returns the first violated rule in struct
// field order, or nil when everything passes.
func Validate(ctx context.Context, structure any) *FieldError {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) *FieldError {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	return &FieldError{Field: ve.Field(), Tag: ve.Tag()}
}
