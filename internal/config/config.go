// Package config fills a flat options struct from a TOML file and
// CAMRELAY_* environment variables, and watches the file for logging
// changes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smazurov/camrelay/internal/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "CAMRELAY_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts, a pointer to a struct, with precedence
// CLI flags > environment > TOML file. Fields carry `toml:"section.key"`
// and `env:"KEY"` tags; a string field named Config holds the file path.
// Flags changed on cmd are left alone. A missing file is not an error.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: want pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	var file map[string]any
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
		var err error
		if file, err = readTOML(f.String()); err != nil {
			return err
		}
	}

	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		if !field.CanSet() || changed[flagName(sf.Name)] {
			continue
		}

		if key := sf.Tag.Get("toml"); key != "" && file != nil {
			if raw := lookup(file, key); raw != nil {
				if err := assign(field, raw); err != nil {
					return fmt.Errorf("config %s: %w", key, err)
				}
			}
		}

		if key := sf.Tag.Get("env"); key != "" {
			if raw, ok := os.LookupEnv(EnvPrefix + key); ok && raw != "" {
				if err := assignString(field, raw); err != nil {
					return fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
				}
			}
		}
	}
	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

func readTOML(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return doc, nil
}

// flagName maps a field name to its humacli flag: "NatsURL" -> "nats-url".
func flagName(field string) string {
	var b strings.Builder
	runes := []rune(field)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted key in a decoded TOML document.
func lookup(doc map[string]any, key string) any {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := doc[part].(map[string]any)
		if !ok {
			return nil
		}
		doc = next
	}
	return doc[parts[len(parts)-1]]
}

// assign stores a decoded TOML value. Durations accept a number of
// seconds or a Go duration string.
func assign(field reflect.Value, raw any) error {
	if field.Type() == durationType {
		switch x := raw.(type) {
		case int64:
			field.SetInt(int64(time.Duration(x) * time.Second))
			return nil
		case float64:
			field.SetInt(int64(x * float64(time.Second)))
			return nil
		case string:
			return assignString(field, x)
		}
		return fmt.Errorf("want seconds or duration, got %T", raw)
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := raw.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int64:
		if n, ok := raw.(int64); ok {
			field.SetInt(n)
			return nil
		}
	case reflect.Float64:
		switch x := raw.(type) {
		case float64:
			field.SetFloat(x)
			return nil
		case int64:
			field.SetFloat(float64(x))
			return nil
		}
	case reflect.Slice:
		if arr, ok := raw.([]any); ok && field.Type().Elem().Kind() == reflect.String {
			out := make([]string, 0, len(arr))
			for _, item := range arr {
				s, isStr := item.(string)
				if !isStr {
					return fmt.Errorf("want string items, got %T", item)
				}
				out = append(out, s)
			}
			field.Set(reflect.ValueOf(out))
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
}

// assignString parses an environment value into field. Slices are
// comma-separated.
func assignString(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			field.SetInt(int64(secs * float64(time.Second)))
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice %s", field.Type())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// LoadLogging reads the [logging] table of a TOML file. "level" and
// "format" are global; every other key is a module level.
func LoadLogging(path string) (logging.Config, error) {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var doc struct {
		Logging map[string]string `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	for key, value := range doc.Logging {
		switch key {
		case "level":
			cfg.Level = value
		case "format":
			cfg.Format = value
		default:
			cfg.Modules[key] = value
		}
	}
	return cfg, nil
}
