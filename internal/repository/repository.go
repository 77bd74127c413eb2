// Package repository implements the Postgres persistence layer for the
// agent router. One repository type backs the narrow store interfaces
// declared by the routing and learning packages.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/S-Corkum/agent-router/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("repository: not found")

// Postgres implements the router's persistence over PostgreSQL
type Postgres struct {
	db     *sqlx.DB
	schema string
}

// NewPostgres creates a new PostgreSQL repository
func NewPostgres(db *sqlx.DB, schema string) *Postgres {
	if schema == "" {
		schema = "router"
	}
	return &Postgres{db: db, schema: schema}
}

// CreateAgent inserts an agent and its capability links. Capabilities
// are created on first reference.
func (r *Postgres) CreateAgent(ctx context.Context, agent *models.Agent) error {
	if agent.Status == "" {
		agent.Status = models.AgentStatusActive
	}
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s.agents (id, name, status, provider, max_workload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, r.schema)
	if _, err := tx.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.Status, agent.Provider, agent.MaxWorkload,
		agent.CreatedAt, agent.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}

	for _, link := range agent.Capabilities {
		if err := r.linkCapabilityTx(ctx, tx, agent.ID, link); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent insert: %w", err)
	}
	return nil
}

func (r *Postgres) linkCapabilityTx(ctx context.Context, tx *sqlx.Tx, agentID string, link models.CapabilityLink) error {
	var capID string
	query := fmt.Sprintf(`
		INSERT INTO %s.capabilities (id, name, category)
		VALUES (gen_random_uuid(), $1, '')
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, r.schema)
	if err := tx.QueryRowxContext(ctx, query, link.Name).Scan(&capID); err != nil {
		return fmt.Errorf("failed to upsert capability %q: %w", link.Name, err)
	}

	query = fmt.Sprintf(`
		INSERT INTO %s.agent_capabilities (agent_id, capability_id, priority)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, capability_id) DO UPDATE SET priority = EXCLUDED.priority
	`, r.schema)
	if _, err := tx.ExecContext(ctx, query, agentID, capID, link.Priority); err != nil {
		return fmt.Errorf("failed to link capability %q: %w", link.Name, err)
	}
	return nil
}

// GetAgent fetches one agent with its capability links
func (r *Postgres) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	query := fmt.Sprintf(`
		SELECT id, name, status, provider, max_workload, created_at, updated_at
		FROM %s.agents WHERE id = $1
	`, r.schema)

	var agent models.Agent
	if err := r.db.GetContext(ctx, &agent, query, agentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	caps, err := r.agentCapabilities(ctx, []string{agentID})
	if err != nil {
		return nil, err
	}
	agent.Capabilities = caps[agentID]
	return &agent, nil
}

// ListAgents returns all agents ordered by creation time
func (r *Postgres) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	return r.listAgents(ctx, false)
}

// ListActiveAgents returns only ACTIVE agents ordered by creation time
func (r *Postgres) ListActiveAgents(ctx context.Context) ([]*models.Agent, error) {
	return r.listAgents(ctx, true)
}

func (r *Postgres) listAgents(ctx context.Context, activeOnly bool) ([]*models.Agent, error) {
	query := fmt.Sprintf(`
		SELECT id, name, status, provider, max_workload, created_at, updated_at
		FROM %s.agents
	`, r.schema)
	if activeOnly {
		query += " WHERE status = 'active'"
	}
	query += " ORDER BY created_at ASC"

	var agents []*models.Agent
	if err := r.db.SelectContext(ctx, &agents, query); err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if len(agents) == 0 {
		return agents, nil
	}

	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	caps, err := r.agentCapabilities(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range agents {
		a.Capabilities = caps[a.ID]
	}
	return agents, nil
}

func (r *Postgres) agentCapabilities(ctx context.Context, agentIDs []string) (map[string][]models.CapabilityLink, error) {
	query := fmt.Sprintf(`
		SELECT ac.agent_id, c.name, ac.priority
		FROM %s.agent_capabilities ac
		JOIN %s.capabilities c ON c.id = ac.capability_id
		WHERE ac.agent_id = ANY($1)
		ORDER BY ac.priority DESC, c.name ASC
	`, r.schema, r.schema)

	rows, err := r.db.QueryxContext(ctx, query, pq.Array(agentIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string][]models.CapabilityLink)
	for rows.Next() {
		var agentID, name string
		var priority int
		if err := rows.Scan(&agentID, &name, &priority); err != nil {
			return nil, fmt.Errorf("failed to scan capability row: %w", err)
		}
		out[agentID] = append(out[agentID], models.CapabilityLink{Name: name, Priority: priority})
	}
	return out, rows.Err()
}

// UpdateAgentStatus sets an agent's status
func (r *Postgres) UpdateAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) error {
	query := fmt.Sprintf(`
		UPDATE %s.agents SET status = $2, updated_at = $3 WHERE id = $1
	`, r.schema)
	res, err := r.db.ExecContext(ctx, query, agentID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalBlob(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata blob: %w", err)
	}
	return data, nil
}
