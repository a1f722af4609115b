package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// postgresRepository implements Repository against the mcp_servers table.
type postgresRepository struct {
	db *Pool
}

// NewPostgresRepository builds a Repository backed by pool.
func NewPostgresRepository(pool *Pool) Repository {
	return &postgresRepository{db: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, s *Server) error {
	cfgJSON, err := json.Marshal(s.Config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	statusJSON, err := json.Marshal(s.Status)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}

	_, err = r.db.Raw().Exec(ctx, `
		INSERT INTO mcp_servers (id, name, config, status, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Config.Name, cfgJSON, statusJSON, s.CreatedAt, s.UpdatedAt, s.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNameConflict
		}
		return fmt.Errorf("inserting server: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id string) (*Server, error) {
	row := r.db.Raw().QueryRow(ctx, `
		SELECT id, config, status, created_at, updated_at, created_by
		FROM mcp_servers WHERE id = $1`, id)
	return scanServer(row)
}

func (r *postgresRepository) GetByName(ctx context.Context, name string) (*Server, error) {
	row := r.db.Raw().QueryRow(ctx, `
		SELECT id, config, status, created_at, updated_at, created_by
		FROM mcp_servers WHERE name = $1`, strings.ToLower(name))
	return scanServer(row)
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) (*Page, error) {
	var conditions []string
	var args []any
	argN := 0

	if filter.CreatedBy != "" {
		argN++
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", argN))
		args = append(args, filter.CreatedBy)
	}
	if filter.Status != "" {
		argN++
		conditions = append(conditions, fmt.Sprintf("status->>'status' = $%d", argN))
		args = append(args, string(filter.Status))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := r.db.Raw().QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM mcp_servers%s", where), args...,
	).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting servers: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.db.Raw().Query(ctx, fmt.Sprintf(`
		SELECT id, config, status, created_at, updated_at, created_by
		FROM mcp_servers%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, where, pageSize, offset), args...)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	var servers []*Server
	for rows.Next() {
		s, err := scanServerRow(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Page{Servers: servers, Total: total, Page: page, PageSize: pageSize}, nil
}

func (r *postgresRepository) UpdateConfig(ctx context.Context, id string, cfg ServerConfig) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	tag, err := r.db.Raw().Exec(ctx,
		`UPDATE mcp_servers SET config = $2 WHERE id = $1`, id, cfgJSON)
	if err != nil {
		return fmt.Errorf("updating config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id string, st ServerStatus) error {
	statusJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling status: %w", err)
	}
	tag, err := r.db.Raw().Exec(ctx,
		`UPDATE mcp_servers SET status = $2 WHERE id = $1`, id, statusJSON)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Raw().Exec(ctx, `DELETE FROM mcp_servers WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting server: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepository) ServersByStatus(ctx context.Context, st string) ([]*Server, error) {
	rows, err := r.db.Raw().Query(ctx, `
		SELECT id, config, status, created_at, updated_at, created_by
		FROM mcp_servers WHERE status->>'status' = $1
		ORDER BY created_at DESC`, st)
	if err != nil {
		return nil, fmt.Errorf("querying servers by status: %w", err)
	}
	defer rows.Close()

	var servers []*Server
	for rows.Next() {
		s, err := scanServerRow(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

func (r *postgresRepository) UsedPorts(ctx context.Context) ([]int, error) {
	rows, err := r.db.Raw().Query(ctx, `
		SELECT (config->>'port')::int FROM mcp_servers
		WHERE config->>'port' IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying used ports: %w", err)
	}
	defer rows.Close()

	var ports []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		ports = append(ports, p)
	}
	return ports, rows.Err()
}

// rowScanner abstracts pgx.Row / pgx.Rows so scanServer(Row) can share scan
// logic with the multi-row list queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row pgx.Row) (*Server, error) {
	return scanServerRow(row)
}

func scanServerRow(row rowScanner) (*Server, error) {
	var s Server
	var cfgJSON, statusJSON json.RawMessage

	err := row.Scan(&s.ID, &cfgJSON, &statusJSON, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy)
	if err != nil {
		if err == pgx.ErrNoRows || err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning server row: %w", err)
	}

	if err := json.Unmarshal(cfgJSON, &s.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := json.Unmarshal(statusJSON, &s.Status); err != nil {
		return nil, fmt.Errorf("unmarshaling status: %w", err)
	}
	return &s, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation,
// recognised via either the pgconn error shape (pool queries) or the
// lib/pq one (the migration path, which opens connections through
// database/sql + lib/pq).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
