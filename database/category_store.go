package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const nodeColumns = `id, parent_id, name, materialized_path, depth, sort_order, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresTreeStore implements TreeStore on a categories table. Transactions run
// at REPEATABLE READ and lock subtree rows by path prefix.
type PostgresTreeStore struct {
	pgReader
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgresTreeStore creates a store over db. lockTimeout is applied as the
// transaction-local lock_timeout.
func NewPostgresTreeStore(db *sql.DB, lockTimeout time.Duration) *PostgresTreeStore {
	return &PostgresTreeStore{
		pgReader:    pgReader{q: db},
		db:          db,
		lockTimeout: lockTimeout,
	}
}

// EnsureSchema creates the categories table and its indexes if missing.
func (s *PostgresTreeStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return mapStoreError(ctx, err, "ensure schema")
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresTreeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx implements TreeStore.
func (s *PostgresTreeStore) WithinTx(ctx context.Context, scopes []string, fn func(ctx context.Context, tx TreeTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapStoreError(ctx, err, "begin transaction")
	}
	defer tx.Rollback()

	// The snapshot is taken by the first locking statement, before any lock
	// wait ends. SERIALIZABLE turns a read of a sibling group that changed
	// during that wait into 40001 instead of a duplicate sort order.
	if _, err := tx.ExecContext(ctx, `SET TRANSACTION ISOLATION LEVEL SERIALIZABLE`); err != nil {
		return mapStoreError(ctx, err, "set isolation level")
	}

	if s.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return mapStoreError(ctx, err, "set lock timeout")
		}
	}

	if err := lockScopes(ctx, tx, normalizeScopes(scopes)); err != nil {
		return err
	}

	if err := fn(ctx, &pgTx{pgReader: pgReader{q: tx}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return mapStoreError(ctx, err, "commit")
	}
	return nil
}

// lockScopes takes FOR UPDATE on each scope's subtree and FOR SHARE on its
// ancestors, so a concurrent move of an ancestor conflicts as well.
func lockScopes(ctx context.Context, tx *sql.Tx, scopes []string) error {
	for _, scope := range scopes {
		if scope == "" {
			if _, err := tx.ExecContext(ctx, `LOCK TABLE categories IN SHARE ROW EXCLUSIVE MODE`); err != nil {
				return mapStoreError(ctx, err, "lock forest")
			}
			continue
		}
		if isSiblingScope(scope) {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, scope); err != nil {
				return mapStoreError(ctx, err, "lock sibling group")
			}
			continue
		}

		_, err := tx.ExecContext(ctx,
			`SELECT id FROM categories
			 WHERE materialized_path = $1 OR materialized_path LIKE $2 ESCAPE '\'
			 ORDER BY materialized_path
			 FOR UPDATE`,
			scope, likePrefix(scope))
		if err != nil {
			return mapStoreError(ctx, err, "lock subtree "+scope)
		}

		ancestors := strings.Split(scope, pathcodec.Delimiter)
		if len(ancestors) < 2 {
			continue
		}
		prefixes := make([]string, 0, len(ancestors)-1)
		for i := 1; i < len(ancestors); i++ {
			prefixes = append(prefixes, strings.Join(ancestors[:i], pathcodec.Delimiter))
		}
		_, err = tx.ExecContext(ctx,
			`SELECT id FROM categories
			 WHERE materialized_path = ANY($1::text[])
			 ORDER BY materialized_path
			 FOR SHARE`,
			pq.Array(prefixes))
		if err != nil {
			return mapStoreError(ctx, err, "lock ancestors of "+scope)
		}
	}
	return nil
}

// likePrefix builds a LIKE pattern matching strict descendants of path.
func likePrefix(path string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(path)
	return escaped + pathcodec.Delimiter + "%"
}

type pgReader struct {
	q queryer
}

func (r pgReader) GetNode(ctx context.Context, id string) (*models.CategoryNode, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM categories WHERE id = $1`, id)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNodeNotFoundError(id)
	}
	if err != nil {
		return nil, mapStoreError(ctx, err, "get node")
	}
	return node, nil
}

func (r pgReader) GetNodeByPath(ctx context.Context, path string) (*models.CategoryNode, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM categories WHERE materialized_path = $1`, path)
	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(apperrors.ErrCodeNodeNotFound, "Category node not found", nil).
			WithDetails("path %q", path)
	}
	if err != nil {
		return nil, mapStoreError(ctx, err, "get node by path")
	}
	return node, nil
}

func (r pgReader) GetNodesByPaths(ctx context.Context, paths []string) ([]*models.CategoryNode, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	return r.queryNodes(ctx, "get nodes by paths",
		`SELECT `+nodeColumns+` FROM categories WHERE materialized_path = ANY($1::text[])`,
		pq.Array(paths))
}

func (r pgReader) GetChildren(ctx context.Context, parentID *string) ([]*models.CategoryNode, error) {
	var (
		nodes []*models.CategoryNode
		err   error
	)
	if parentID == nil {
		nodes, err = r.queryNodes(ctx, "get roots",
			`SELECT `+nodeColumns+` FROM categories WHERE parent_id IS NULL ORDER BY sort_order, id`)
	} else {
		nodes, err = r.queryNodes(ctx, "get children",
			`SELECT `+nodeColumns+` FROM categories WHERE parent_id = $1 ORDER BY sort_order, id`,
			*parentID)
	}
	if err != nil {
		return nil, err
	}
	SortSiblings(nodes)
	return nodes, nil
}

func (r pgReader) CountChildren(ctx context.Context, id string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = $1`, id).Scan(&count)
	if err != nil {
		return 0, mapStoreError(ctx, err, "count children")
	}
	return count, nil
}

func (r pgReader) GetSubtree(ctx context.Context, rootPath string) ([]*models.CategoryNode, error) {
	nodes, err := r.queryNodes(ctx, "get subtree",
		`SELECT `+nodeColumns+` FROM categories WHERE materialized_path LIKE $1 ESCAPE '\' ORDER BY materialized_path`,
		likePrefix(rootPath))
	if err != nil {
		return nil, err
	}
	SortPreOrder(nodes)
	return nodes, nil
}

func (r pgReader) ListAll(ctx context.Context) ([]*models.CategoryNode, error) {
	nodes, err := r.queryNodes(ctx, "list all",
		`SELECT `+nodeColumns+` FROM categories ORDER BY materialized_path`)
	if err != nil {
		return nil, err
	}
	SortPreOrder(nodes)
	return nodes, nil
}

func (r pgReader) queryNodes(ctx context.Context, op, query string, args ...interface{}) ([]*models.CategoryNode, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError(ctx, err, op)
	}
	defer rows.Close()

	var nodes []*models.CategoryNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, mapStoreError(ctx, err, op)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(ctx, err, op)
	}
	return nodes, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*models.CategoryNode, error) {
	var (
		node     models.CategoryNode
		parentID sql.NullString
	)
	err := row.Scan(
		&node.ID,
		&parentID,
		&node.Name,
		&node.MaterializedPath,
		&node.Depth,
		&node.SortOrder,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		p := parentID.String
		node.ParentID = &p
	}
	return &node, nil
}

type pgTx struct {
	pgReader
	tx *sql.Tx
}

func (t *pgTx) Insert(ctx context.Context, node *models.CategoryNode) error {
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO categories (`+nodeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		node.ID, nullableString(node.ParentID), node.Name, node.MaterializedPath,
		node.Depth, node.SortOrder, node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return mapStoreError(ctx, err, "insert node")
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, nodes ...*models.CategoryNode) error {
	now := time.Now().UTC()
	for _, node := range nodes {
		node.UpdatedAt = now
		result, err := t.tx.ExecContext(ctx,
			`UPDATE categories
			 SET parent_id = $2, name = $3, materialized_path = $4, depth = $5, sort_order = $6, updated_at = $7
			 WHERE id = $1`,
			node.ID, nullableString(node.ParentID), node.Name, node.MaterializedPath,
			node.Depth, node.SortOrder, node.UpdatedAt)
		if err != nil {
			return mapStoreError(ctx, err, "update node")
		}
		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			return apperrors.NewNodeNotFoundError(node.ID)
		}
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return mapStoreError(ctx, err, "delete node")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return apperrors.NewNodeNotFoundError(id)
	}
	return nil
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
