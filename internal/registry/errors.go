package registry

import "errors"

var (
	// ErrNotFound is returned when a server record does not exist.
	ErrNotFound = errors.New("registry: server not found")
	// ErrNameConflict is returned when a server name is already registered.
	ErrNameConflict = errors.New("registry: server name already exists")
	// ErrInvalidName is returned when a server name fails validation.
	ErrInvalidName = errors.New("registry: invalid server name")
	// ErrInvalidPort is returned when a requested port is outside 1024-65535.
	ErrInvalidPort = errors.New("registry: port must be between 1024 and 65535")
	// ErrInvalidCPULimit is returned when cpu_limit is outside (0, 4].
	ErrInvalidCPULimit = errors.New("registry: cpu_limit must be greater than 0 and at most 4")
)
