package utils

import (
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// IsEmpty checks if a string is empty.
func IsEmpty(s string) bool {
	return s == ""
}

// ParseStructEnv binds env vars to struct fields using a mapstructure tag
func ParseStructEnv(cfg interface{}) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		if err := viper.BindEnv(tag); err != nil {
			return err
		}
	}
	return viper.Unmarshal(cfg)
}

// FormatConfigErrors logs each failed validation rule and returns a single
// error suitable for aborting startup.
func FormatConfigErrors(logger *zap.Logger, err error, cfg interface{}) error {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	for _, fe := range vErrs {
		logger.Error("invalid configuration value",
			zap.String("field", fe.StructField()),
			zap.String("rule", fe.Tag()),
			zap.String("param", fe.Param()),
		)
	}
	return errors.New("configuration validation failed")
}
