package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Ссылка назначения заказа.
	_ = validate.RegisterValidation("smmlink", func(fl validator.FieldLevel) bool {
		return IsValidLink(fl.Field().String())
	})

	// Положительная денежная сумма в виде строки.
	_ = validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.IsPositive()
	})

	// Денежная сумма любого знака, кроме нуля.
	_ = validate.RegisterValidation("delta", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && !d.IsZero()
	})

	_ = validate.RegisterValidation("twofa_purpose", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "enable", "disable":
			return true
		}
		return false
	})
}

// Struct проверяет структуру запроса и возвращает ошибки по полям или nil.
func Struct(s any) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	res := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			res[field] = "This field is required"
		case "email":
			res[field] = "Invalid email format"
		case "min":
			res[field] = "Value is too short (min: " + fe.Param() + ")"
		case "max":
			res[field] = "Value is too long (max: " + fe.Param() + ")"
		case "gt", "gte":
			res[field] = "Value must be greater than " + fe.Param()
		case "uuid":
			res[field] = "Invalid identifier"
		case "smmlink":
			res[field] = "Invalid link"
		case "money":
			res[field] = "Amount must be a positive number"
		case "delta":
			res[field] = "Amount must be a non-zero number"
		case "twofa_purpose":
			res[field] = "Purpose must be enable or disable"
		default:
			res[field] = "Invalid value"
		}
	}
	return res
}
