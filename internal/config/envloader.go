package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

// LookupFunc returns the value of an environment variable and whether it is set.
type LookupFunc func(key string) (string, bool)

// LoadFromEnv overrides cfg fields tagged with `env:"NAME"` from the process
// environment. cfg must be a pointer to a struct; nested structs are walked.
func LoadFromEnv(cfg any) error {
	return LoadFromLookup(cfg, os.LookupEnv)
}

// LoadFromLookup is LoadFromEnv with a custom variable source.
// Variables that are unset or empty leave the field untouched.
func LoadFromLookup(cfg any, lookup LookupFunc) error {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("config must be a non-nil pointer, got %T", cfg)
	}
	return loadFromEnv(v.Elem(), lookup)
}

func loadFromEnv(v reflect.Value, lookup LookupFunc) error {
	if v.Kind() != reflect.Struct {
		return nil
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadFromEnv(field, lookup); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		value, ok := lookup(envTag)
		if !ok || value == "" {
			continue
		}

		if err := setFieldValue(field, value, envTag); err != nil {
			return fmt.Errorf("%s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string, envVar string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration in %s: %w", envVar, err)
			}
			field.SetInt(int64(duration))
			return nil
		}
		intVal, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer in %s: %w", envVar, err)
		}
		field.SetInt(intVal)

	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean in %s: %w", envVar, err)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported type %s for %s", field.Kind(), envVar)
	}

	return nil
}
