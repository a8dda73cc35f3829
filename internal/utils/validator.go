// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// License keys: PREFIX-BLOCK-...-CHECKSUM, uppercase alphanumerics.
var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}(-[A-Z0-9]{1,8})+$`)

// Device ids are caller-chosen opaque identifiers; bound the charset
// and length so they stay storable and loggable.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("license_key", validateLicenseKey)
	validate.RegisterValidation("device_id", validateDeviceID)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateLicenseKey(fl validator.FieldLevel) bool {
	key := fl.Field().String()
	if len(key) < 8 || len(key) > 64 {
		return false
	}
	return licenseKeyPattern.MatchString(key)
}

func validateDeviceID(fl validator.FieldLevel) bool {
	return deviceIDPattern.MatchString(fl.Field().String())
}

// ValidateDeviceMeta bounds the schema-less binding metadata so the
// JSON column cannot grow without limit.
func ValidateDeviceMeta(meta map[string]string) bool {
	if len(meta) > 16 {
		return false
	}
	for k, v := range meta {
		if len(k) == 0 || len(k) > 64 || len(v) > 256 {
			return false
		}
	}
	return true
}

type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "license_key":
		return "License key format is invalid"
	case "device_id":
		return "Device ID must be 1-128 characters of letters, digits, dot, dash, underscore or colon"
	default:
		return e.Field() + " is invalid"
	}
}
