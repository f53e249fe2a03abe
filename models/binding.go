package models

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RegisterValidators adds the request-binding tags used by handlers:
// "objectid" for hex ids and "decimal2" for money amounts.
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return primitive.IsValidObjectID(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("decimal2", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			return HasAtMostTwoDecimals(fl.Field().Float())
		case reflect.Int, reflect.Int32, reflect.Int64:
			return true
		}
		return false
	})
}
