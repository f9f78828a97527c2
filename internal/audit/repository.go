package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads approval entries from audit_logs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// TimelineWindow returns a page of entries.
func (r *PostgresRepository) TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	return r.query(ctx, params, true)
}

// TimelineAll returns every matching entry.
func (r *PostgresRepository) TimelineAll(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	return r.query(ctx, params, false)
}

func (r *PostgresRepository) query(ctx context.Context, params WindowParams, window bool) ([]TimelineRow, error) {
	conditions := []string{"tenant_id = $1", "entity = $2"}
	args := []interface{}{params.TenantID, EntitySalesDocument}
	argPos := 3
	if !params.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("at >= $%d", argPos))
		args = append(args, toPgTime(params.From))
		argPos++
	}
	if !params.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("at < $%d", argPos))
		args = append(args, toPgTime(params.To.AddDate(0, 0, 1)))
		argPos++
	}
	if params.ActorID > 0 {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argPos))
		args = append(args, params.ActorID)
		argPos++
	}
	if params.EntityID != "" {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", argPos))
		args = append(args, params.EntityID)
		argPos++
	}
	if params.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argPos))
		args = append(args, params.Action)
		argPos++
	}
	query := `SELECT at, actor_id, action, entity, entity_id, meta FROM audit_logs WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY at DESC, id DESC`
	if window {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var at pgtype.Timestamptz
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&at, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if at.Valid {
			row.At = at.Time
		}
		applyMeta(&row, meta)
		result = append(result, row)
	}
	return result, rows.Err()
}

func applyMeta(row *TimelineRow, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var meta struct {
		Number     string `json:"number"`
		Level      int    `json:"level"`
		FromStatus string `json:"from_status"`
		ToStatus   string `json:"to_status"`
		Notes      string `json:"notes"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return
	}
	row.Number = meta.Number
	row.Level = meta.Level
	row.FromStatus = meta.FromStatus
	row.ToStatus = meta.ToStatus
	row.Notes = meta.Notes
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
