package partition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres backs each tenant partition with a dedicated schema, plus a
// row in the partitions table mapping workspace to partition name.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Create inserts the partition record and creates the tenant schema.
// Both statements are idempotent, so two control-plane processes
// igniting the same workspace concurrently converge on the same
// partition: ON CONFLICT DO NOTHING plus a re-select, and
// CREATE SCHEMA IF NOT EXISTS.
func (p *Postgres) Create(ctx context.Context, workspaceID string) (CreateResult, error) {
	name := NameFor(workspaceID)

	tag, err := p.pool.Exec(ctx,
		`INSERT INTO partitions (workspace_id, partition_name) VALUES ($1, $2)
		 ON CONFLICT (workspace_id) DO NOTHING`,
		workspaceID, name)
	if err != nil {
		return CreateResult{}, fmt.Errorf("insert partition record: %w", err)
	}
	alreadyExisted := tag.RowsAffected() == 0

	if alreadyExisted {
		// Another creator won the insert; read back the name it chose.
		err = p.pool.QueryRow(ctx,
			`SELECT partition_name FROM partitions WHERE workspace_id = $1`,
			workspaceID).Scan(&name)
		if err != nil {
			return CreateResult{}, fmt.Errorf("read partition record: %w", err)
		}
	}

	_, err = p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{name}.Sanitize())
	if err != nil {
		return CreateResult{}, fmt.Errorf("create partition schema: %w", err)
	}

	if !alreadyExisted {
		slog.Info("Partition created", "workspace_id", workspaceID, "partition", name)
	}

	return CreateResult{PartitionName: name, AlreadyExisted: alreadyExisted}, nil
}

func (p *Postgres) Drop(ctx context.Context, partitionName string) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM partitions WHERE partition_name = $1`, partitionName)
	if err != nil {
		return fmt.Errorf("delete partition record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPartitionNotFound
	}

	_, err = p.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{partitionName}.Sanitize()+" CASCADE")
	if err != nil {
		return fmt.Errorf("drop partition schema: %w", err)
	}

	slog.Info("Partition dropped", "partition", partitionName)
	return nil
}

// Lookup returns the partition name for a workspace, if any.
func (p *Postgres) Lookup(ctx context.Context, workspaceID string) (string, error) {
	var name string
	err := p.pool.QueryRow(ctx,
		`SELECT partition_name FROM partitions WHERE workspace_id = $1`,
		workspaceID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPartitionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup partition: %w", err)
	}
	return name, nil
}
