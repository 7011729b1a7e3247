package models

import (
	"github.com/go-playground/validator/v10"

	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

var validate = validator.New()

// ValidateInput checks a New* payload and maps failures to the
// ValidationError kind callers branch on.
func ValidateInput(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		return utils.ValidationError(err, "invalid payload")
	}
	return nil
}
