package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"hospital_locker/server/locker/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type signInInput struct {
	Email    string `validate:"required"`
	Password string `validate:"required"`
}

type uploadInput struct {
	Filename string `validate:"required"`
	Content  []byte `validate:"min=1"`
}

type recipientInput struct {
	RecipientEmail string `validate:"required,email"`
}

type shareInput struct {
	DocID          string `validate:"required"`
	RecipientEmail string `validate:"required,email"`
}

type sendInput struct {
	RecipientEmail string `validate:"required,email"`
	Text           string `validate:"required"`
}

type createUserInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
	Role     string `validate:"required,oneof=doctor patient"`
}

type assignInput struct {
	DoctorUID  string `validate:"required"`
	PatientUID string `validate:"required"`
}

type setRoleInput struct {
	UID  string `validate:"required"`
	Role string `validate:"required,oneof=patient doctor admin"`
}

// check validates in and, on failure, returns a validation error whose
// user message is msg. The offending fields go into the wrapped cause.
func check(op string, in any, msg string) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
		}
		err = fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
	}
	return &domain.Error{Kind: domain.ErrValidation, Op: op, Message: msg, Err: err}
}
