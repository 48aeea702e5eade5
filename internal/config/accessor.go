package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
)

// GetByPath returns the value at a dot path such as "cli.program" or
// "schedules.0.cron". Keys are the JSON names used in the config file.
func GetByPath(cfg *Config, path string) (any, error) {
	v, err := lookup(cfg, path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// ListPaths returns every scalar setting keyed by its dot path.
func ListPaths(cfg *Config) map[string]any {
	out := make(map[string]any)
	collect("", reflect.ValueOf(cfg).Elem(), out)
	return out
}

// Update sets one scalar key in the config file at path. The file is edited
// as written: ${VAR} placeholders survive, keys it omits stay omitted and
// environment overrides are never persisted. value is parsed according to
// the key's type, and the resulting config must still validate.
func Update(path, key, value string) error {
	path = ExpandPath(path)

	current, err := load(path)
	if err != nil {
		return err
	}
	target, err := lookup(current, key)
	if err != nil {
		return err
	}
	typed, err := parseScalar(key, target.Kind(), value)
	if err != nil {
		return err
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("cannot edit %s: %w", path, err)
		}
	}
	if err := setIn(doc, strings.Split(key, "."), typed); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	effective := Defaults()
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(out))), effective); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	ApplyEnv(effective)
	normalize(effective)
	if err := Validate(effective); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	return os.WriteFile(path, append(out, '\n'), 0o600)
}

// Sanitize returns a copy of the config with the HTTP token masked.
func Sanitize(cfg *Config) *Config {
	cp := *cfg
	cp.Schedules = append([]ScheduleConfig(nil), cfg.Schedules...)
	if cp.HTTP.Token != "" {
		cp.HTTP.Token = maskString(cp.HTTP.Token)
	}
	return &cp
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// lookup walks struct fields by JSON name and slices by index.
func lookup(cfg *Config, path string) (reflect.Value, error) {
	if path == "" {
		return reflect.Value{}, fmt.Errorf("empty path")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, part := range strings.Split(path, ".") {
		switch v.Kind() {
		case reflect.Struct:
			f, ok := fieldByJSONName(v, part)
			if !ok {
				return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
			}
			v = f
		case reflect.Slice:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= v.Len() {
				return reflect.Value{}, fmt.Errorf("invalid index %q in %s", part, path)
			}
			v = v.Index(idx)
		default:
			return reflect.Value{}, fmt.Errorf("unknown config key: %s", path)
		}
	}
	return v, nil
}

func jsonName(f reflect.StructField) string {
	return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if jsonName(t.Field(i)) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func collect(prefix string, v reflect.Value, out map[string]any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if name := jsonName(t.Field(i)); name != "" && name != "-" {
				collect(join(name), v.Field(i), out)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			collect(join(strconv.Itoa(i)), v.Index(i), out)
		}
	default:
		out[prefix] = v.Interface()
	}
}

// parseScalar converts a command-line value to the type of the field at key.
func parseScalar(key string, kind reflect.Kind, value string) (any, error) {
	switch kind {
	case reflect.String:
		return value, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false, got %q", key, value)
		}
		return b, nil
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer, got %q", key, value)
		}
		return n, nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number, got %q", key, value)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%s is not a single value, edit the file to change it", key)
	}
}

// setIn assigns val at parts inside a decoded JSON document, creating
// missing objects on the way.
func setIn(node any, parts []string, val any) error {
	switch n := node.(type) {
	case map[string]any:
		if len(parts) == 1 {
			n[parts[0]] = val
			return nil
		}
		child, ok := n[parts[0]]
		if !ok {
			child = map[string]any{}
			n[parts[0]] = child
		}
		return setIn(child, parts[1:], val)
	case []any:
		idx, err := strconv.Atoi(parts[0])
		if err != nil || idx < 0 || idx >= len(n) {
			return fmt.Errorf("invalid index %q", parts[0])
		}
		if len(parts) == 1 {
			n[idx] = val
			return nil
		}
		return setIn(n[idx], parts[1:], val)
	default:
		return fmt.Errorf("%s is inside a non-object value", parts[0])
	}
}
