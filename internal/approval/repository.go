package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-approvals/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository provides PostgreSQL backed persistence for documents,
// action history and level configuration.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// WithTx wraps callback in a repeatable-read transaction. Serialization
// failures surface as ErrConcurrentModification.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresRepository{pool: r.pool, db: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
	}
	return err
}

const documentColumns = `id, tenant_id, document_type, number, status, current_level, total_levels,
	document_date, total, currency_code, person_id, version, created_at, updated_at`

// GetDocument loads a document by id.
func (r *PostgresRepository) GetDocument(ctx context.Context, id int64) (SalesDocument, error) {
	return r.getDocument(ctx, `SELECT `+documentColumns+` FROM sales_documents WHERE id = $1`, id)
}

// GetDocumentForUpdate loads a document and row-locks it until the
// surrounding transaction ends.
func (r *PostgresRepository) GetDocumentForUpdate(ctx context.Context, id int64) (SalesDocument, error) {
	return r.getDocument(ctx, `SELECT `+documentColumns+` FROM sales_documents WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) getDocument(ctx context.Context, query string, id int64) (SalesDocument, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesDocument{}, ErrNotFound
		}
		return SalesDocument{}, err
	}
	return doc, nil
}

// InsertDocument stores a new document and returns its id.
func (r *PostgresRepository) InsertDocument(ctx context.Context, doc SalesDocument) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sales_documents (tenant_id, document_type, number, status, current_level, total_levels,
			document_date, total, currency_code, person_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id`,
		doc.TenantID, string(doc.DocumentType), doc.Number, string(doc.Status), doc.CurrentLevel, doc.TotalLevels,
		pgtype.Date{Time: doc.DocumentDate, Valid: !doc.DocumentDate.IsZero()}, doc.Total, doc.CurrencyCode,
		pgtype.Int8{Int64: doc.PersonID, Valid: doc.PersonID > 0}, doc.Version, doc.CreatedAt,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateNumber, doc.Number)
		}
		return 0, err
	}
	return id, nil
}

// SwapDocumentState is the compare-and-swap on (status, current_level, version).
func (r *PostgresRepository) SwapDocumentState(ctx context.Context, next SalesDocument, expected StateStamp) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sales_documents
		SET status = $1, current_level = $2, total_levels = $3, version = $4, updated_at = $5
		WHERE id = $6 AND status = $7 AND current_level = $8 AND version = $9`,
		string(next.Status), next.CurrentLevel, next.TotalLevels, next.Version, next.UpdatedAt,
		next.ID, string(expected.Status), expected.CurrentLevel, expected.Version,
	)
	if err != nil {
		if db.IsSerializationFailure(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// AppendAction inserts one history record.
func (r *PostgresRepository) AppendAction(ctx context.Context, rec ActionRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO approval_actions (id, document_id, tenant_id, document_type, level_index, actor_id,
			action, from_status, to_status, super_admin, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.DocumentID, rec.TenantID, string(rec.DocumentType), rec.LevelIndex, rec.ActorID,
		string(rec.Action), string(rec.FromStatus), string(rec.ToStatus), rec.SuperAdmin,
		pgtype.Text{String: rec.Notes, Valid: rec.Notes != ""}, rec.At,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		}
		return err
	}
	return nil
}

// ListActions returns the history of a document, oldest first.
func (r *PostgresRepository) ListActions(ctx context.Context, documentID int64) ([]ActionRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, document_id, tenant_id, document_type, level_index, actor_id, action,
			from_status, to_status, super_admin, notes, created_at
		FROM approval_actions
		WHERE document_id = $1
		ORDER BY created_at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ActionRecord{}
	for rows.Next() {
		var rec ActionRecord
		var docType, action, from, to string
		var notes pgtype.Text
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.TenantID, &docType, &rec.LevelIndex, &rec.ActorID,
			&action, &from, &to, &rec.SuperAdmin, &notes, &rec.At); err != nil {
			return nil, err
		}
		rec.DocumentType = DocumentType(docType)
		rec.Action = Action(action)
		rec.FromStatus = Status(from)
		rec.ToStatus = Status(to)
		if notes.Valid {
			rec.Notes = notes.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListPending returns SUBMITTED documents at the given levels.
func (r *PostgresRepository) ListPending(ctx context.Context, filter PendingFilter) ([]SalesDocument, int, error) {
	where := `WHERE tenant_id = $1 AND document_type = $2 AND status = 'SUBMITTED'`
	args := []interface{}{filter.TenantID, string(filter.DocumentType)}
	if filter.Levels != nil {
		where += ` AND current_level = ANY($3)`
		levels := make([]int32, len(filter.Levels))
		for i, l := range filter.Levels {
			levels[i] = int32(l)
		}
		args = append(args, levels)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales_documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argPos := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM sales_documents %s
		ORDER BY document_date ASC, id ASC
		LIMIT $%d OFFSET $%d`, documentColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	docs := []SalesDocument{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	return docs, total, rows.Err()
}

// PendingCount is the number of SUBMITTED documents waiting at one level.
type PendingCount struct {
	TenantID     int64
	DocumentType DocumentType
	LevelIndex   int
	Count        int
}

// CountPending groups SUBMITTED documents by tenant, type and level.
func (r *PostgresRepository) CountPending(ctx context.Context) ([]PendingCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT tenant_id, document_type, current_level, COUNT(*)
		FROM sales_documents
		WHERE status = 'SUBMITTED'
		GROUP BY tenant_id, document_type, current_level
		ORDER BY tenant_id, document_type, current_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []PendingCount
	for rows.Next() {
		var c PendingCount
		var docType string
		if err := rows.Scan(&c.TenantID, &docType, &c.LevelIndex, &c.Count); err != nil {
			return nil, err
		}
		c.DocumentType = DocumentType(docType)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// GetLevels returns the configured levels and whether the type was ever configured.
func (r *PostgresRepository) GetLevels(ctx context.Context, tenantID int64, docType DocumentType) ([]LevelConfig, bool, error) {
	var configured bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM approval_configs WHERE tenant_id = $1 AND document_type = $2)`,
		tenantID, string(docType)).Scan(&configured)
	if err != nil {
		return nil, false, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT level_index, role_ids
		FROM approval_levels
		WHERE tenant_id = $1 AND document_type = $2
		ORDER BY level_index`, tenantID, string(docType))
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	levels := []LevelConfig{}
	for rows.Next() {
		level := LevelConfig{TenantID: tenantID, DocumentType: docType}
		if err := rows.Scan(&level.LevelIndex, &level.RoleIDs); err != nil {
			return nil, false, err
		}
		levels = append(levels, level)
	}
	return levels, configured, rows.Err()
}

// ReplaceLevels swaps the whole level list in one transaction.
func (r *PostgresRepository) ReplaceLevels(ctx context.Context, tenantID int64, docType DocumentType, levels []LevelConfig, actorID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO approval_configs (tenant_id, document_type, updated_by, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, document_type)
			DO UPDATE SET updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
			tenantID, string(docType), pgtype.Int8{Int64: actorID, Valid: actorID > 0}, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert approval config: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM approval_levels WHERE tenant_id = $1 AND document_type = $2`,
			tenantID, string(docType)); err != nil {
			return fmt.Errorf("clear approval levels: %w", err)
		}
		for _, level := range levels {
			if _, err := tx.Exec(ctx, `
				INSERT INTO approval_levels (tenant_id, document_type, level_index, role_ids)
				VALUES ($1, $2, $3, $4)`,
				tenantID, string(docType), level.LevelIndex, level.RoleIDs); err != nil {
				return fmt.Errorf("insert approval level %d: %w", level.LevelIndex, err)
			}
		}
		return nil
	})
}

func scanDocument(row pgx.Row) (SalesDocument, error) {
	var doc SalesDocument
	var docType, status string
	var documentDate pgtype.Date
	var total pgtype.Numeric
	var personID pgtype.Int8
	err := row.Scan(&doc.ID, &doc.TenantID, &docType, &doc.Number, &status, &doc.CurrentLevel, &doc.TotalLevels,
		&documentDate, &total, &doc.CurrencyCode, &personID, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return SalesDocument{}, err
	}
	doc.DocumentType = DocumentType(docType)
	doc.Status = Status(status)
	if documentDate.Valid {
		doc.DocumentDate = documentDate.Time
	}
	if total.Valid {
		f, _ := total.Float64Value()
		doc.Total = f.Float64
	}
	if personID.Valid {
		doc.PersonID = personID.Int64
	}
	return doc, nil
}
