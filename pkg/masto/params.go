package masto

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
)

// Params is the parameter set of a logical request. Values are scalars
// (string, bool, ints, floats, time.Time), slices of scalars, or File.
type Params map[string]any

// File is a binary parameter. Any File in a write request switches the body
// to multipart/form-data.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// HasFile reports whether any value is a File.
func (p Params) HasFile() bool {
	for _, v := range p {
		switch v.(type) {
		case File, *File:
			return true
		}
	}

	return false
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}

	for k, v := range other {
		out[k] = v
	}

	return out
}

// ParamsFrom converts a params struct into Params. Field names become
// snake_case keys unless a `param:"name"` tag overrides them; `param:"-"`
// skips the field. Zero values are omitted.
func ParamsFrom(v any) (Params, error) {
	if v == nil {
		return Params{}, nil
	}

	if p, ok := v.(Params); ok {
		return p, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Params{}, nil
		}

		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidParams, v)
	}

	params := Params{}
	collectParams(rv, params)

	return params, nil
}

func collectParams(rv reflect.Value, params Params) {
	rt := rv.Type()

	for i := range rt.NumField() {
		field := rt.Field(i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectParams(rv.Field(i), params)

			continue
		}

		if field.Anonymous && field.Type.Kind() == reflect.Pointer && field.Type.Elem().Kind() == reflect.Struct {
			if !rv.Field(i).IsNil() {
				collectParams(rv.Field(i).Elem(), params)
			}

			continue
		}

		if !field.IsExported() {
			continue
		}

		name := strcase.ToSnake(field.Name)
		if tag, ok := field.Tag.Lookup("param"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}

			if tagName != "" {
				name = tagName
			}
		}

		value := rv.Field(i)
		if value.IsZero() {
			continue
		}

		if value.Kind() == reflect.Pointer {
			value = value.Elem()
		}

		params[name] = value.Interface()
	}
}

// FormatScalar renders a scalar parameter value for a query string or form field.
func FormatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}

		return "false"
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
