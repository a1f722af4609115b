package registry

import "context"

// Repository is the storage boundary for server records, satisfied by
// postgresRepository for production use and by a hand-rolled in-memory
// fake in tests.
type Repository interface {
	Insert(ctx context.Context, s *Server) error
	Get(ctx context.Context, id string) (*Server, error)
	GetByName(ctx context.Context, name string) (*Server, error)
	List(ctx context.Context, filter ListFilter) (*Page, error)
	UpdateConfig(ctx context.Context, id string, cfg ServerConfig) error
	UpdateStatus(ctx context.Context, id string, st ServerStatus) error
	Delete(ctx context.Context, id string) (bool, error)
	ServersByStatus(ctx context.Context, st string) ([]*Server, error)
	UsedPorts(ctx context.Context) ([]int, error)
}
