package service

import (
	"errors"
	"strings"

	"pulsefeed/internal/models"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// MsgValidationFailed is the summary message for field validation errors.
const MsgValidationFailed = "Validation failed, entered data is incorrect."

// PostFields are the user-editable text fields of a post.
type PostFields struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Normalize trims surrounding whitespace.
func (f PostFields) Normalize() PostFields {
	return PostFields{Title: strings.TrimSpace(f.Title), Content: strings.TrimSpace(f.Content)}
}

// Validate will run validation rules
func (f PostFields) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Title, validation.Required, validation.Length(5, 300)),
		validation.Field(&f.Content, validation.Required, validation.Length(5, 10000)),
	)
}

// SignupInput is the registration payload.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Normalize trims fields and lowercases the email.
func (in SignupInput) Normalize() SignupInput {
	return SignupInput{
		Email:    strings.ToLower(strings.TrimSpace(in.Email)),
		Password: strings.TrimSpace(in.Password),
		Name:     strings.TrimSpace(in.Name),
	}
}

// Validate will run validation rules
func (in SignupInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(5, 72)),
		validation.Field(&in.Name, validation.Required, validation.Length(1, 100)),
	)
}

// StatusInput is the status update payload.
type StatusInput struct {
	Status string `json:"status"`
}

// Validate will run validation rules
func (in StatusInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Status, validation.Required, validation.Length(1, 255)),
	)
}

// fieldErrors flattens ozzo errors into field messages.
func fieldErrors(err error) map[string]string {
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return nil
	}
	fields := make(map[string]string, len(errs))
	for name, fieldErr := range errs {
		if fieldErr != nil {
			fields[name] = fieldErr.Error()
		}
	}
	return fields
}

// validationFailed converts ozzo errors into a field-level AppError.
func validationFailed(err error) error {
	if err == nil {
		return nil
	}
	if fields := fieldErrors(err); fields != nil {
		return models.NewFieldValidationError(MsgValidationFailed, fields)
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return models.NewInternalError(err)
	}
	return models.NewValidationError(err.Error())
}
