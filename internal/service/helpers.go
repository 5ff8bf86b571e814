package service

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
)

// lookupError maps a repository read failure to NOT_FOUND or INTERNAL_ERROR.
func lookupError(err error, notFoundMsg, internalMsg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	if appErr, ok := err.(*appErrors.Error); ok {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internalMsg)
}

func internalError(err error, msg string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

// roundHours keeps hour arithmetic at the two decimals stored by NUMERIC(_,2) columns.
func roundHours(v float64) float64 {
	return math.Round(v*100) / 100
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func sameResource(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// ValidationError turns validator and parse failures into a VALIDATION_ERROR naming the fields.
func ValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		parts := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			parts = append(parts, fmt.Sprintf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag()))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload: "+strings.Join(parts, "; "))
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
}

// fieldPath drops the Go struct and embedded-struct names from a validator namespace.
func fieldPath(namespace string) string {
	segments := strings.Split(namespace, ".")
	for len(segments) > 1 && segments[0] != "" && unicode.IsUpper(rune(segments[0][0])) {
		segments = segments[1:]
	}
	return strings.Join(segments, ".")
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	return v
}
