package api

import (
	"errors"
	"reflect"
	"strings"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// maxEmojiUnits bounds a reaction key in UTF-16 code units, which covers a
// single surrogate pair.
const maxEmojiUnits = 2

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("emoji", validateEmoji)
	return v
}

func validateEmoji(fl validator.FieldLevel) bool {
	n := 0
	for _, r := range fl.Field().String() {
		n += utf16.RuneLen(r)
	}
	return n >= 1 && n <= maxEmojiUnits
}

// invalidFields lists the json names of the fields that failed validation.
// Any other error is returned as its message.
func invalidFields(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, len(verrs))
	for i, fe := range verrs {
		names[i] = fe.Field()
	}
	return strings.Join(names, ", ")
}
