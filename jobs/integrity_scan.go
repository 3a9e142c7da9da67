package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/observability"
)

const defaultScanDepth = 1000

// IntegrityScanJob reports permission-graph drift that the write-time
// checks cannot catch, such as rows edited directly in the database. The
// scan is read-only; findings are logged and counted, never repaired.
type IntegrityScanJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIntegrityScanJob constructs the job. metrics may be nil.
func NewIntegrityScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{pool: pool, logger: logger, metrics: metrics}
}

// Finding is one structural problem in the permission graph.
type Finding struct {
	PermissionID int64
	Problem      string
}

// Handle processes TaskPermissionIntegrityScan tasks.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxDepth <= 0 {
		payload.MaxDepth = defaultScanDepth
	}

	findings, err := j.Scan(ctx, payload.MaxDepth)
	if err != nil {
		if j.metrics != nil {
			j.metrics.ObserveJob(TaskPermissionIntegrityScan, "failure")
		}
		return err
	}

	for _, f := range findings {
		j.logger.Warn("permission graph drift",
			slog.Int64("permission_id", f.PermissionID),
			slog.String("problem", f.Problem))
	}
	j.logger.Info("integrity scan completed", slog.Int("findings", len(findings)))
	if j.metrics != nil {
		j.metrics.ObserveJob(TaskPermissionIntegrityScan, "success")
	}
	return nil
}

// Scan runs the three structural checks and returns every finding.
func (j *IntegrityScanJob) Scan(ctx context.Context, maxDepth int) ([]Finding, error) {
	var findings []Finding

	const missingParents = `
		SELECT c.id FROM permissions c
		LEFT JOIN permissions p ON p.id = c.parent_id
		WHERE c.parent_id IS NOT NULL AND p.id IS NULL
		ORDER BY c.id`
	ids, err := j.queryIDs(ctx, missingParents)
	if err != nil {
		return nil, fmt.Errorf("scan missing parents: %w", err)
	}
	for _, id := range ids {
		findings = append(findings, Finding{PermissionID: id, Problem: "parent does not exist"})
	}

	const disabledParents = `
		SELECT c.id FROM permissions c
		JOIN permissions p ON p.id = c.parent_id
		WHERE c.enable AND NOT p.enable
		ORDER BY c.id`
	ids, err = j.queryIDs(ctx, disabledParents)
	if err != nil {
		return nil, fmt.Errorf("scan disabled parents: %w", err)
	}
	for _, id := range ids {
		findings = append(findings, Finding{PermissionID: id, Problem: "enabled child under disabled parent"})
	}

	cycles, err := j.scanCycles(ctx, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("scan cycles: %w", err)
	}
	findings = append(findings, cycles...)

	return findings, nil
}

// scanCycles walks every node's ancestor chain in memory. The permission
// table is small (hundreds of rows), so one full load beats a recursive
// query that a cycle would make non-terminating without a depth cap.
func (j *IntegrityScanJob) scanCycles(ctx context.Context, maxDepth int) ([]Finding, error) {
	rows, err := j.pool.Query(ctx, `SELECT id, parent_id FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := make(map[int64]*int64)
	for rows.Next() {
		var id int64
		var parent *int64
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, err
		}
		parents[id] = parent
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var findings []Finding
	for id := range parents {
		cursor := parents[id]
		for depth := 0; cursor != nil && depth < maxDepth; depth++ {
			if *cursor == id {
				findings = append(findings, Finding{PermissionID: id, Problem: "node is its own ancestor"})
				break
			}
			next, ok := parents[*cursor]
			if !ok {
				break
			}
			cursor = next
		}
	}
	return findings, nil
}

func (j *IntegrityScanJob) queryIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := j.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
