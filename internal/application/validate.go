package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bryanwahyu/codesight/internal/domain/ai"
)

// NewValidator returns a validator that reports fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidateStruct runs the struct's validate tags and turns failures into an
// *ai.ValidationError, first failure per field.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := fields[fe.Field()]; ok {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return &ai.ValidationError{Fields: fields}
}

// message is keyed by Go field name so every form shares one wording.
func message(fe validator.FieldError) string {
	switch fe.StructField() + "/" + fe.Tag() {
	case "Title/max":
		return fmt.Sprintf("Title can be at most %d characters.", ai.MaxTitleLength)
	case "Language/required", "Language/min":
		return "Please select a language."
	case "Code/min":
		return fmt.Sprintf("Code must be at least %d characters.", ai.MinCodeLength)
	case "Code/max":
		return fmt.Sprintf("Code cannot exceed %d characters.", ai.MaxCodeLength)
	case "ExplanationLevel/oneof":
		return "Explanation level must be Basic, Intermediate or Deep."
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// DefaultTitle is used when a form leaves the title blank.
func DefaultTitle(language string) string {
	return "Analysis for " + language
}
