// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"catalogadmin/internal/database"
	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/metrics"
	"catalogadmin/internal/models"
)

// Defaults for the get-or-create critical section.
const (
	DefaultLockTimeout   = 5 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 100 * time.Millisecond
)

// CategoryStore manages both category taxonomies. It is the single entry
// point for interactive edits, the import engine and the CLI, so every
// caller goes through the same get-or-create, delete and merge paths.
type CategoryStore struct {
	db *sql.DB

	lockTimeout time.Duration
	attempts    uint64
	backoff     time.Duration
}

// CategoryOption customises a CategoryStore.
type CategoryOption func(*CategoryStore)

// WithLockTimeout bounds how long GetOrCreate waits for a contended key.
func WithLockTimeout(d time.Duration) CategoryOption {
	return func(s *CategoryStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithRetry sets the total number of GetOrCreate attempts and the base
// delay. The n-th retry waits n times the base delay.
func WithRetry(attempts int, backoff time.Duration) CategoryOption {
	return func(s *CategoryStore) {
		if attempts > 0 {
			s.attempts = uint64(attempts)
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB, opts ...CategoryOption) *CategoryStore {
	s := &CategoryStore{
		db:          db,
		lockTimeout: DefaultLockTimeout,
		attempts:    DefaultRetryAttempts,
		backoff:     DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const categoryColumns = `id, name, type, parent_id, level, status, created_at, updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Type, &c.ParentID,
		&c.Level, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreate returns the id of the category named name under parentID in
// taxonomy t, creating it when absent. Concurrent callers asking for the
// same triple all receive the same id and exactly one row is created.
//
// Each attempt runs in its own transaction that serialises on an advisory
// lock derived from the triple, then checks for the row with FOR UPDATE
// before inserting. Lock timeouts, deadlocks and lost insert races are
// retried with a linear backoff.
func (s *CategoryStore) GetOrCreate(ctx context.Context, name string, parentID *int64, t models.CategoryType) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if !t.Valid() {
		return 0, fmt.Errorf("%w: unknown type %q", ErrInvalidCategory, t)
	}

	var (
		id      int64
		attempt int
	)
	err := retry.Do(ctx, s.retryPolicy(), func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.RecordResolveRetry()
		}

		var err error
		id, err = s.getOrCreateOnce(ctx, name, parentID, t)
		if err != nil && database.IsRetryable(err) {
			slog.Debug("category get-or-create contended, retrying",
				"name", name, "type", t, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get or create category %q: %w", name, err)
	}
	return id, nil
}

// retryPolicy waits backoff, 2*backoff, ... between attempts.
func (s *CategoryStore) retryPolicy() retry.Backoff {
	var n int64
	step := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return time.Duration(n) * s.backoff, false
	})
	return retry.WithMaxRetries(s.attempts-1, step)
}

func (s *CategoryStore) getOrCreateOnce(ctx context.Context, name string, parentID *int64, t models.CategoryType) (int64, error) {
	var (
		id      int64
		created bool
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}

		key := hierarchy.CacheKey(t, name, parentID)
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock category key: %w", err)
		}

		found, err := lookupCategoryID(ctx, tx, name, parentID, t, true)
		if err == nil {
			id = found
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup category: %w", err)
		}

		level, parent, err := childLevel(ctx, tx, parentID)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, type, parent_id, level)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (type, (COALESCE(parent_id, 0)), name) DO NOTHING
			RETURNING id
		`, name, string(t), parent, level).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// Someone outside the advisory lock (an explicit Create) won.
			id, err = lookupCategoryID(ctx, tx, name, parent, t, false)
			if err != nil {
				return fmt.Errorf("reload category: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert category: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created {
		metrics.RecordCategoryCreated(string(t))
		slog.Debug("category created", "id", id, "name", name, "type", t)
	}
	return id, nil
}

// lookupCategoryID finds the category matching the exact triple. Roots are
// matched on a NULL parent.
func lookupCategoryID(ctx context.Context, q queryer, name string, parentID *int64, t models.CategoryType, lock bool) (int64, error) {
	query := `
		SELECT id FROM categories
		WHERE type = $1 AND COALESCE(parent_id, 0) = COALESCE($2::bigint, 0) AND name = $3`
	if lock {
		query += ` FOR UPDATE`
	}
	var id int64
	err := q.QueryRowContext(ctx, query, string(t), parentID, name).Scan(&id)
	return id, err
}

// childLevel returns the level for a new child of parentID and the parent
// to insert it under. The parent row is share-locked so it cannot be
// deleted before the child commits. A parent that has already vanished is
// logged and the child becomes a level 1 root instead of failing.
func childLevel(ctx context.Context, q queryer, parentID *int64) (int, *int64, error) {
	if parentID == nil {
		return 1, nil, nil
	}

	var level int
	err := q.QueryRowContext(ctx,
		`SELECT level FROM categories WHERE id = $1 FOR SHARE`, *parentID,
	).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("parent category vanished, creating child as root", "parent_id", *parentID)
		return 1, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("lookup parent level: %w", err)
	}
	return level + 1, parentID, nil
}

// ResolveChain resolves a root-to-leaf path of names, creating any missing
// segment, and returns the leaf id. Blank segments are skipped.
func (s *CategoryStore) ResolveChain(ctx context.Context, t models.CategoryType, segments []string) (int64, error) {
	return hierarchy.ResolveChain(ctx, s, t, segments)
}

// FindByID returns a single category.
func (s *CategoryStore) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	return findCategory(ctx, s.db, id, "")
}

func findCategory(ctx context.Context, q queryer, id int64, lock string) (*models.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`+lock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find category %d: %w", id, err)
	}
	return c, nil
}

// Create inserts a category chosen explicitly by a user. Unlike GetOrCreate
// an existing triple is reported as ErrDuplicateCategory. The category's ID,
// Level and timestamps are set on success.
func (s *CategoryStore) Create(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCategory, c.Type)
	}
	if c.Status == "" {
		c.Status = models.CategoryStatusActive
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCategory, c.Status)
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		c.Level = 1
		if c.ParentID != nil {
			parent, err := findCategory(ctx, tx, *c.ParentID, " FOR SHARE")
			if err != nil {
				return err
			}
			if parent.Type != c.Type {
				return ErrParentType
			}
			c.Level = parent.Level + 1
		}
		if c.Level > models.MaxCategoryDepth {
			return ErrTooDeep
		}

		err := tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, type, parent_id, level, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`, c.Name, string(c.Type), c.ParentID, c.Level, string(c.Status),
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if database.IsUniqueViolation(err) {
			return ErrDuplicateCategory
		}
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		metrics.RecordCategoryCreated(string(c.Type))
		return nil
	})
}

// Update renames, reparents or changes the status of a category. The type
// is immutable. Moving a category under itself or one of its descendants is
// rejected with ErrCycle. When the parent changes, the levels of the moved
// subtree are shifted by the same amount so they stay consistent.
func (s *CategoryStore) Update(ctx context.Context, c *models.Category) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidCategory, c.Status)
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		current, err := findCategory(ctx, tx, c.ID, " FOR UPDATE")
		if err != nil {
			return err
		}
		c.Type = current.Type
		c.Level = current.Level
		if current.IsUncategorized() && c.Name != current.Name {
			return ErrProtectedCategory
		}

		reparent := !sameParent(current.ParentID, c.ParentID)
		var subtree []int64
		if reparent {
			if current.IsUncategorized() {
				return ErrProtectedCategory
			}

			newLevel := 1
			if c.ParentID != nil {
				parent, err := findCategory(ctx, tx, *c.ParentID, " FOR SHARE")
				if err != nil {
					return err
				}
				if parent.Type != current.Type {
					return ErrParentType
				}
				newLevel = parent.Level + 1
			}

			forest, err := loadForest(ctx, tx, current.Type)
			if err != nil {
				return err
			}
			if c.ParentID != nil && forest.IsAncestor(c.ID, *c.ParentID) {
				return ErrCycle
			}

			subtree = forest.Descendants(c.ID)
			base := forest.Depth(c.ID)
			deepest := 0
			for _, d := range subtree {
				if rel := forest.Depth(d) - base; rel > deepest {
					deepest = rel
				}
			}
			if newLevel+deepest > models.MaxCategoryDepth {
				return ErrTooDeep
			}
			c.Level = newLevel
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE categories
			SET name = $2, parent_id = $3, level = $4, status = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at
		`, c.ID, c.Name, c.ParentID, c.Level, string(c.Status),
		).Scan(&c.CreatedAt, &c.UpdatedAt)
		if database.IsUniqueViolation(err) {
			return ErrDuplicateCategory
		}
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}

		if delta := c.Level - current.Level; reparent && delta != 0 && len(subtree) > 1 {
			_, err := tx.ExecContext(ctx, `
				UPDATE categories SET level = level + $1, updated_at = NOW()
				WHERE id = ANY($2) AND id <> $3
			`, delta, subtree, c.ID)
			if err != nil {
				return fmt.Errorf("shift subtree levels: %w", err)
			}
		}
		return nil
	})
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// loadForest reads every category of type t (or all types when t is empty)
// into an in-memory forest.
func loadForest(ctx context.Context, q queryer, t models.CategoryType) (*hierarchy.Forest, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, parent_id, name, type FROM categories
		WHERE $1 = '' OR type::text = $1
	`, string(t))
	if err != nil {
		return nil, fmt.Errorf("load category forest: %w", err)
	}
	defer rows.Close()

	var nodes []hierarchy.Node
	for rows.Next() {
		var n hierarchy.Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Name, &n.Type); err != nil {
			return nil, fmt.Errorf("scan category node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load category forest: %w", err)
	}
	return hierarchy.NewForest(nodes), nil
}

// Forest returns both taxonomies as an in-memory forest.
func (s *CategoryStore) Forest(ctx context.Context) (*hierarchy.Forest, error) {
	return loadForest(ctx, s.db, "")
}

// List returns the categories of taxonomy t (all when empty) ordered by
// level and name. ProductCount covers products assigned to the category or
// to any of its descendants, and Path holds the names from the root.
func (s *CategoryStore) List(ctx context.Context, t models.CategoryType) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+`
		FROM categories
		WHERE $1 = '' OR type::text = $1
		ORDER BY type, level, name
	`, string(t))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var (
		items []models.Category
		nodes []hierarchy.Node
	)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
		nodes = append(nodes, hierarchy.Node{ID: c.ID, ParentID: c.ParentID, Name: c.Name, Type: c.Type})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	direct, err := countByCategory(ctx, s.db)
	if err != nil {
		return nil, err
	}

	forest := hierarchy.NewForest(nodes)
	totals := forest.SubtreeTotals(direct)
	for i := range items {
		items[i].ProductCount = totals[items[i].ID]
		items[i].Path = forest.PathNames(items[i].ID)
	}
	return items, nil
}

// Tree returns the categories of taxonomy t nested under their parents.
func (s *CategoryStore) Tree(ctx context.Context, t models.CategoryType) ([]models.Category, error) {
	flat, err := s.List(ctx, t)
	if err != nil {
		return nil, err
	}
	return BuildTree(flat), nil
}

// BuildTree nests a flat category list. Categories whose parent is not in
// the list become roots.
func BuildTree(flat []models.Category) []models.Category {
	byID := make(map[int64]models.Category, len(flat))
	nodes := make([]hierarchy.Node, 0, len(flat))
	for _, c := range flat {
		byID[c.ID] = c
		nodes = append(nodes, hierarchy.Node{ID: c.ID, ParentID: c.ParentID, Name: c.Name, Type: c.Type})
	}
	forest := hierarchy.NewForest(nodes)

	var build func(id int64) models.Category
	build = func(id int64) models.Category {
		c := byID[id]
		c.Children = nil
		for _, child := range forest.Children(id) {
			c.Children = append(c.Children, build(child))
		}
		return c
	}

	var roots []models.Category
	for _, id := range forest.Roots("") {
		roots = append(roots, build(id))
	}
	return roots
}

// EnsureUncategorized returns the id of the Uncategorized root of taxonomy
// t, creating it inside tx if it does not exist yet.
func (s *CategoryStore) EnsureUncategorized(ctx context.Context, tx *sql.Tx, t models.CategoryType) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO categories (name, type, parent_id, level)
		VALUES ($1, $2, NULL, 1)
		ON CONFLICT (type, (COALESCE(parent_id, 0)), name) DO NOTHING
		RETURNING id
	`, models.UncategorizedName, string(t)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id, err = lookupCategoryID(ctx, tx, models.UncategorizedName, nil, t, false)
	} else if err == nil {
		metrics.RecordCategoryCreated(string(t))
		slog.Info("uncategorized category created", "type", t, "id", id)
	}
	if err != nil {
		return 0, fmt.Errorf("ensure %s uncategorized: %w", t, err)
	}
	return id, nil
}

// Delete removes a category and all of its descendants. See BulkDelete.
func (s *CategoryStore) Delete(ctx context.Context, id int64) (int, error) {
	return s.BulkDelete(ctx, []int64{id})
}

// BulkDelete removes the given categories and every descendant of them.
// Products pointing at any removed category, in either taxonomy column, are
// first moved to that column's Uncategorized root, which is created only
// when some product needs it. Reassignment and deletion
// commit together. It returns the number of deleted categories.
//
// Deleting an Uncategorized root is rejected with ErrProtectedCategory and
// nothing is changed. Unknown ids are ignored unless none of the ids exist.
func (s *CategoryStore) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no categories selected", ErrInvalidCategory)
	}

	var (
		deleted int
		moved   int64
	)
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		forest, err := loadForest(ctx, tx, "")
		if err != nil {
			return err
		}

		var known []int64
		for _, id := range ids {
			if _, ok := forest.Node(id); ok {
				known = append(known, id)
			}
		}
		if len(known) == 0 {
			return ErrCategoryNotFound
		}

		doomed := forest.Descendants(known...)
		for _, id := range doomed {
			if n, ok := forest.Node(id); ok && n.ParentID == nil && n.Name == models.UncategorizedName {
				return ErrProtectedCategory
			}
		}

		for _, t := range models.CategoryTypes() {
			col := t.Column()
			// Only a type with products to move gets an Uncategorized root.
			var referenced bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM products WHERE `+col+` = ANY($1))`, doomed,
			).Scan(&referenced); err != nil {
				return fmt.Errorf("check %s products: %w", t, err)
			}
			if !referenced {
				continue
			}

			fallback, err := s.EnsureUncategorized(ctx, tx, t)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET `+col+` = $1, updated_at = NOW() WHERE `+col+` = ANY($2)`,
				fallback, doomed)
			if err != nil {
				return fmt.Errorf("reassign %s products: %w", t, err)
			}
			n, _ := res.RowsAffected()
			moved += n
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ANY($1)`, doomed)
		if err != nil {
			return fmt.Errorf("delete categories: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordCategoriesDeleted(deleted)
	metrics.RecordProductsReassigned("delete", moved)
	slog.Info("categories deleted", "requested", len(ids), "deleted", deleted, "products_reassigned", moved)
	return deleted, nil
}

// Merge moves every product that references sourceID, in either taxonomy
// column, to targetID. Both categories keep existing and products of the
// source's descendants are not touched. When t is non-empty both categories
// must belong to it. It returns the number of product references moved.
func (s *CategoryStore) Merge(ctx context.Context, sourceID, targetID int64, t models.CategoryType) (int64, error) {
	if sourceID == targetID {
		return 0, ErrSameCategory
	}

	var moved int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		source, err := findCategory(ctx, tx, sourceID, " FOR SHARE")
		if err != nil {
			return fmt.Errorf("merge source: %w", err)
		}
		target, err := findCategory(ctx, tx, targetID, " FOR SHARE")
		if err != nil {
			return fmt.Errorf("merge target: %w", err)
		}
		if source.Type != target.Type || (t != "" && source.Type != t) {
			return ErrTypeMismatch
		}

		for _, typ := range models.CategoryTypes() {
			col := typ.Column()
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET `+col+` = $1, updated_at = NOW() WHERE `+col+` = $2`,
				targetID, sourceID)
			if err != nil {
				return fmt.Errorf("merge %s: %w", col, err)
			}
			n, _ := res.RowsAffected()
			moved += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordProductsReassigned("merge", moved)
	slog.Info("categories merged", "source", sourceID, "target", targetID, "products_moved", moved)
	return moved, nil
}
