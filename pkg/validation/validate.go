// Handles all sorts of custom data validations happening in Paddock.

package validation

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

// This function registers custom validation tags to be used as annotations in struct.
// After registering and adding the annotation, govalidator.ValidateStruct will trigger the validation.
func RegisterCustomValidations() {
	// This custom validation checks if there's any spaces in the input string.
	govalidator.TagMap["nospace"] = govalidator.Validator(func(str string) bool {
		return !strings.Contains(str, " ")
	})
	// Dedicated-server map files always carry the .Map.Gbx suffix.
	govalidator.TagMap["mapfile"] = govalidator.Validator(func(str string) bool {
		return strings.HasSuffix(strings.ToLower(str), ".map.gbx")
	})
}
