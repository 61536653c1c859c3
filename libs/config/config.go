package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileEnv  = "CONFIG_FILE"
	envFileEnv     = "ENV_FILE"
	defaultEnvFile = ".env"
)

// Option adjusts where LoadConfig reads values from.
type Option func(*loader)

type loader struct {
	configFile      string
	envFile         string
	envFileRequired bool
	lookup          func(string) (string, bool)
}

// WithConfigFile decodes the given YAML file instead of the one named by CONFIG_FILE.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile reads the given dotenv file; it must exist.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
		l.envFileRequired = path != ""
	}
}

// WithLookup replaces the process environment as the source of overrides.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(l *loader) { l.lookup = lookup }
}

// LoadConfig hydrates the provided struct pointer. Fields start from their `default` tag, the
// YAML file (CONFIG_FILE) is decoded over them, and environment variables override last. A
// dotenv file (ENV_FILE, or ./.env when present) fills in variables the environment lacks.
// Nested structs get PARENT_CHILD keys unless an explicit `env:"CUSTOM_KEY"` tag is set.
// Fields tagged `required:"true"` must end up non-zero.
func LoadConfig(target interface{}, opts ...Option) error {
	if target == nil {
		return errors.New("config: target is nil")
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return errors.New("config: target must be pointer to struct")
	}

	l := newLoader()
	for _, opt := range opts {
		opt(l)
	}

	dotenv, err := l.readEnvFile()
	if err != nil {
		return err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := l.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := walk(val.Elem(), "", applyDefault); err != nil {
		return err
	}
	if l.configFile != "" {
		if err := decodeFile(l.configFile, target); err != nil {
			return err
		}
	}
	if err := walk(val.Elem(), "", func(f field) error { return applyEnv(f, lookup) }); err != nil {
		return err
	}

	var missing []string
	_ = walk(val.Elem(), "", func(f field) error {
		if f.tag.Get("required") == "true" && f.value.IsZero() {
			missing = append(missing, f.key)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required %s", strings.Join(missing, ", "))
	}
	return nil
}

func newLoader() *loader {
	l := &loader{
		configFile: os.Getenv(configFileEnv),
		envFile:    defaultEnvFile,
		lookup:     os.LookupEnv,
	}
	if path := strings.TrimSpace(os.Getenv(envFileEnv)); path != "" {
		l.envFile = path
		l.envFileRequired = true
	}
	return l
}

func (l *loader) readEnvFile() (map[string]string, error) {
	if l.envFile == "" {
		return nil, nil
	}
	if !l.envFileRequired {
		if _, err := os.Stat(l.envFile); err != nil {
			return nil, nil
		}
	}
	values, err := godotenv.Read(l.envFile)
	if err != nil {
		return nil, fmt.Errorf("config: read env file: %w", err)
	}
	return values, nil
}

func decodeFile(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

type field struct {
	value reflect.Value
	tag   reflect.StructTag
	key   string
}

// walk visits every settable leaf field with its resolved environment key.
func walk(v reflect.Value, prefix string, visit func(field) error) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fv, sf := v.Field(i), t.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Anonymous && fv.Kind() == reflect.Struct {
			if err := walk(fv, prefix, visit); err != nil {
				return err
			}
			continue
		}

		tag := sf.Tag.Get("env")
		if tag == "-" {
			continue
		}
		key := envKey(prefix, sf.Name)
		if tag != "" {
			key = envKey("", tag)
		}

		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}) {
			if err := walk(fv, key, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field{value: fv, tag: sf.Tag, key: key}); err != nil {
			return err
		}
	}
	return nil
}

func applyDefault(f field) error {
	def, ok := f.tag.Lookup("default")
	if !ok || !f.value.IsZero() {
		return nil
	}
	if err := assign(f.value, def); err != nil {
		return fmt.Errorf("config: default for %s: %w", f.key, err)
	}
	return nil
}

func applyEnv(f field, lookup func(string) (string, bool)) error {
	raw, ok := lookup(f.key)
	if !ok {
		return nil
	}
	if err := assign(f.value, raw); err != nil {
		return fmt.Errorf("config: parse %s: %w", f.key, err)
	}
	return nil
}

func envKey(prefix, name string) string {
	name = strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

var durationType = reflect.TypeOf(time.Duration(0))

func assign(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return err
		}
		fv.SetFloat(n)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", fv.Type())
		}
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type %s", fv.Type())
	}
	return nil
}
