// Package validate runs struct-tag validation and converts failures into
// validation errors.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	svcErr "github.com/campusmatch/engine/internal/errors"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	// report json field names, not Go ones
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return val
}

// Struct validates s and returns an InvalidArgument error describing the
// first failing field.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return svcErr.InvalidArgument(fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
		return svcErr.InvalidArgument(fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return svcErr.InvalidArgument(err.Error())
}
