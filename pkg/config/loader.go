package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by configs that check their own invariants after parsing.
type Validator interface {
	Validate() error
}

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache sync.Map // reflect.Type -> *entry

	dotenvOnce sync.Once
)

// Load parses environment variables into v according to its `env` tags.
// A .env file in the working directory is read once per process if present.
// Each config type is parsed once; later calls get a copy of the cached value,
// including a cached failure.
//
//	type Config struct {
//	    Addr string `env:"HTTP_ADDR" envDefault:":8080"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenvOnce.Do(func() {
		// A missing .env is normal outside local development
		_ = godotenv.Load()
	})

	raw, _ := cache.LoadOrStore(reflect.TypeFor[T](), &entry{})
	e := raw.(*entry)
	e.once.Do(func() {
		var parsed T
		e.value, e.err = parse(&parsed)
	})
	if e.err != nil {
		return e.err
	}
	*v = e.value.(T)
	return nil
}

// MustLoad works like Load but panics on failure. Meant for startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// LoadFiles reads the given dotenv files into the process environment without
// overriding variables that are already set. Call it before the first Load.
func LoadFiles(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return godotenv.Load(paths...)
}

func parse[T any](v *T) (T, error) {
	if err := env.Parse(v); err != nil {
		return *v, errors.Join(ErrParsingConfig, err)
	}
	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return *v, errors.Join(ErrInvalidConfig, err)
		}
	}
	return *v, nil
}
