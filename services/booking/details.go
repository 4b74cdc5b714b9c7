package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kuraos/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DetailsInput is the detail-step form. Timezone is the client's IANA zone
// and is stored with the booking for destination-side rendering.
type DetailsInput struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Email    string  `json:"email" validate:"required,email,max=254"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=40"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Timezone string  `json:"timezone" validate:"required,timezone"`
}

func (in DetailsInput) normalize() DetailsInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Timezone = strings.TrimSpace(in.Timezone)
	in.Phone = trimOptional(in.Phone)
	in.Notes = trimOptional(in.Notes)
	return in
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// Validate checks the form and resolves the timezone. All failures are
// ValidationError and never reach the network.
func (in DetailsInput) Validate() (models.ContactDetails, *time.Location, error) {
	in = in.normalize()
	if err := validate.Struct(in); err != nil {
		return models.ContactDetails{}, nil, models.WrapSagaError(models.ErrValidation, describeValidation(err), err)
	}
	loc, err := time.LoadLocation(in.Timezone)
	if err != nil {
		return models.ContactDetails{}, nil, models.WrapSagaError(models.ErrValidation, "timezone must be an IANA zone name", err)
	}

	return models.ContactDetails{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
		Notes: in.Notes,
	}, loc, nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid details"
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email is not a valid address"
	case "timezone":
		return "timezone must be an IANA zone name"
	case "max":
		return fmt.Sprintf("%s is too long", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// FormatSlotStart renders the slot start in the client's zone with an explicit
// UTC offset. The instant is unchanged; only its presentation carries the zone.
func FormatSlotStart(start time.Time, loc *time.Location) string {
	return start.In(loc).Format(time.RFC3339)
}
