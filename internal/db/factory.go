package db

import (
	"greenfloor/internal/config"
)

// Factory opens a fresh handle per execution context. The cycle and the
// listener each hold their own; a handle is never shared between goroutines
// that write concurrently.
type Factory struct {
	Config config.DBConfig
}

func NewFactory(cfg config.DBConfig) *Factory {
	return &Factory{Config: cfg}
}

func (f *Factory) Open() (*DB, error) {
	return Open(f.Config)
}

// With opens a handle, runs fn and releases the handle again.
func (f *Factory) With(fn func(*DB) error) error {
	handle, err := f.Open()
	if err != nil {
		return err
	}
	defer Close(handle)
	return fn(handle)
}
