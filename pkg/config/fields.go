package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// field is one settable leaf reached by walk.
type field struct {
	value  reflect.Value
	tag    reflect.StructTag
	path   string // dotted Go field path, e.g. "Store.Redis.Host"
	envKey string // fully prefixed env var name, or "" if the field has no env tag
}

// walk visits every settable leaf field of rv depth-first. Nested structs
// (other than time types) are descended into; their env tag extends the
// prefix for their children.
func walk(rv reflect.Value, prefix string, visit func(field) error) error {
	return walkPath(rv, prefix, "", visit)
}

func walkPath(rv reflect.Value, prefix, path string, visit func(field) error) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		sf := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		envTag := sf.Tag.Get("env")

		if isNested(fv) {
			if err := walkPath(fv, joinKey(prefix, envTag), fieldPath, visit); err != nil {
				return err
			}
			continue
		}

		f := field{value: fv, tag: sf.Tag, path: fieldPath}
		if envTag != "" {
			f.envKey = joinKey(prefix, envTag)
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func isNested(v reflect.Value) bool {
	return v.Kind() == reflect.Struct && v.Type() != durationType && v.Type() != reflect.TypeOf(time.Time{})
}

func joinKey(prefix, key string) string {
	switch {
	case key == "":
		return prefix
	case prefix == "":
		return key
	default:
		return prefix + "_" + key
	}
}

// setFromString parses raw into v. Supported kinds are string (including
// named string types such as Secret), bool, signed and unsigned integers,
// floats, time.Duration and []string (comma separated).
func setFromString(v reflect.Value, raw string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", raw, err)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", raw, err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", raw, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", raw, err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", raw, err)
		}
		v.SetFloat(n)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", v.Type().Elem())
		}
		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(v.Type(), 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = reflect.Append(out, reflect.ValueOf(p).Convert(v.Type().Elem()))
			}
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}
