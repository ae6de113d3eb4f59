package services

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/rxtech-lab/lp-marketplace-mcp/internal/utils"
)

// Native token amounts are entered in whole units with 18 decimals
const nativeDecimals = 18

// CreateListingIntent is what a seller submits to list an LP position
type CreateListingIntent struct {
	Price         string `json:"price" validate:"required,positive_amount"`
	TokenAddress  string `json:"token_address" validate:"required,eth_addr"`
	LPAddress     string `json:"lp_address" validate:"required,eth_addr"`
	LockURL       string `json:"lock_url" validate:"required,http_url"`
	ContactMethod string `json:"contact_method" validate:"required,notblank"`
}

// ListingActionIntent targets an existing listing (purchase, confirm, cancel)
type ListingActionIntent struct {
	ListingID uint64 `json:"listing_id" validate:"gt=0"`
}

type TransferProofIntent struct {
	ListingID         uint64 `json:"listing_id" validate:"gt=0"`
	TransferProofHash string `json:"transfer_proof_hash" validate:"required,notblank"`
}

type EditPriceIntent struct {
	ListingID uint64 `json:"listing_id" validate:"gt=0"`
	NewPrice  string `json:"new_price" validate:"required,positive_amount"`
}

// ValidationError reports the first invalid field of an intent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var fieldLabels = map[string]string{
	"price":               "Price",
	"new_price":           "New price",
	"token_address":       "Token address",
	"lp_address":          "LP address",
	"lock_url":            "Lock URL",
	"contact_method":      "Contact method",
	"listing_id":          "Listing ID",
	"transfer_proof_hash": "Transfer proof hash",
}

// IntentValidator checks intents before any network call is made
type IntentValidator struct {
	validate *validator.Validate
}

func NewIntentValidator() *IntentValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails for empty tags or nil functions
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	_ = validate.RegisterValidation("positive_amount", isPositiveAmount)

	return &IntentValidator{validate: validate}
}

// Validate returns a *ValidationError for the first field that fails
func (v *IntentValidator) Validate(intent interface{}) error {
	err := v.validate.Struct(intent)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fieldErr := fieldErrs[0]
	return &ValidationError{
		Field:   fieldErr.Field(),
		Message: validationMessage(fieldErr),
	}
}

func validationMessage(fieldErr validator.FieldError) string {
	label, ok := fieldLabels[fieldErr.Field()]
	if !ok {
		label = fieldErr.Field()
	}

	switch fieldErr.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", label)
	case "eth_addr":
		return fmt.Sprintf("%s must be 0x followed by 40 hexadecimal characters", label)
	case "positive_amount":
		return fmt.Sprintf("%s must be a positive number", label)
	case "http_url":
		return fmt.Sprintf("%s must be a valid http(s) URL", label)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", label, fieldErr.Param())
	}
	return fmt.Sprintf("%s is invalid", label)
}

func isPositiveAmount(fl validator.FieldLevel) bool {
	_, ok := parseNativeAmount(fl.Field().String())
	return ok
}

// parseNativeAmount converts whole native units to wei. The result must be
// positive and fit the contract's uint256.
func parseNativeAmount(value string) (*big.Int, bool) {
	amount, err := utils.ParseUnits(value, nativeDecimals)
	if err != nil {
		return nil, false
	}
	if amount.Sign() <= 0 || amount.BitLen() > 256 {
		return nil, false
	}
	return amount, true
}
