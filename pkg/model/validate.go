package model

import (
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("channel_kind", func(fl validator.FieldLevel) bool {
		return ChannelKind(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
			return false
		}
		x := f.Float()
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	})
	return v
}

// Validate checks the alert invariants.
func (a *Alert) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	if len(a.Channels) > len(AllChannelKinds) {
		return fmt.Errorf("invalid alert: %d channels, at most %d allowed", len(a.Channels), len(AllChannelKinds))
	}
	return nil
}

// Validate checks contact field formats and the channel set.
func (p *Preferences) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	return nil
}
