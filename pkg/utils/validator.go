package utils

import (
	"context"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func ValidateStructCtx(ctx context.Context, s interface{}) error {
	return validate.StructCtx(ctx, s)
}
