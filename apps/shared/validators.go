package shared

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ulearn/core"
)

// custom validation tags
var notBlankTag = "notblank"

// NewValidator returns the validator shared by config checks and the control API.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	core.RegisterCustomTranslation(validate, translator, notBlankTag, "{0} cannot be blank")
	return validate, translator
}

// Custom Validators

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
