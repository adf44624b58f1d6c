package users

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type formErrors map[string]string

type newUserForm struct {
	Name            string `validate:"required,max=120"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=6,maxbytes=72"`
	ConfirmPassword string `validate:"eqfield=Password"`
	IsAdmin         bool
	IdempotencyKey  string
}

type editUserForm struct {
	Name  string `validate:"required,max=120"`
	Email string `validate:"required,email"`
}

type passwordForm struct {
	UserID          string `validate:"required"`
	Password        string `validate:"required,maxbytes=72,password_policy"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("password_policy", func(fl validator.FieldLevel) bool {
		return PasswordMeetsPolicy(fl.Field().String())
	})
	// bcrypt rejects inputs over 72 bytes; max counts runes.
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})
	return v
}

// validateForm runs struct validation and maps failures to per-field
// messages keyed by field name.
func validateForm(v *validator.Validate, form any) formErrors {
	errs := formErrors{}
	err := v.Struct(form)
	if err == nil {
		return errs
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs["general"] = err.Error()
		return errs
	}
	for _, fe := range fieldErrs {
		if _, seen := errs[fe.Field()]; seen {
			continue
		}
		errs[fe.Field()] = fieldMessage(fe)
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return humanField(fe.Field()) + " is required"
	case "email":
		return "Enter a valid email address"
	case "min":
		return humanField(fe.Field()) + " must be at least " + fe.Param() + " characters"
	case "max":
		return humanField(fe.Field()) + " must be at most " + fe.Param() + " characters"
	case "maxbytes":
		return humanField(fe.Field()) + " must be at most " + fe.Param() + " bytes"
	case "eqfield":
		return "Passwords do not match"
	case "password_policy":
		return "Please fix the password issues before submitting"
	default:
		return fe.Error()
	}
}

func humanField(name string) string {
	switch name {
	case "UserID":
		return "User"
	case "ConfirmPassword":
		return "Password confirmation"
	default:
		return strings.TrimSpace(name)
	}
}
