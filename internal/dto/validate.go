package dto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/libops/library-api/pkg/errors"
)

var validate = validator.New()

// Validate checks struct tags and converts failures into a single
// validation error listing the offending fields.
func Validate(payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	fields := make([]string, 0, len(invalid))
	for _, fieldErr := range invalid {
		fields = append(fields, fmt.Sprintf("%s (%s)", fieldErr.Field(), fieldErr.Tag()))
	}
	return appErrors.Clone(appErrors.ErrValidation, "invalid fields: "+strings.Join(fields, ", "))
}
