package repository

import "fmt"

// Driver names accepted by New.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// New builds a Store for the configured driver.
func New(driver, path string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemStore(), nil
	case DriverSQLite:
		return NewSQLStore(path)
	default:
		return nil, fmt.Errorf("driver %q: %w", driver, ErrUnknownDriver)
	}
}
