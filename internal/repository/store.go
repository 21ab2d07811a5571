// Package repository provides gorm-backed stores for governed records and
// their change requests.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"secmaster/internal/models"
	"secmaster/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T   `json:"data"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
}

// NormalizePage clamps page and pageSize to sane values.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// Scope narrows a query.
type Scope func(*gorm.DB) *gorm.DB

// Store persists one record type. Records with a gorm.DeletedAt field are
// soft-deleted and hidden from every read.
type Store[E any] struct {
	db       *gorm.DB
	resource string
	table    string
}

// NewStore returns a store for E. resource names the record in errors.
func NewStore[E any](db *gorm.DB, resource string) *Store[E] {
	s := &Store[E]{db: db, resource: resource}
	if db != nil {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(new(E)); err == nil {
			s.table = stmt.Schema.Table
		}
	}
	return s
}

// WithTx returns a copy of the store bound to tx.
func (s *Store[E]) WithTx(tx *gorm.DB) *Store[E] {
	return &Store[E]{db: tx, resource: s.resource, table: s.table}
}

// DB returns the underlying handle.
func (s *Store[E]) DB() *gorm.DB {
	return s.db
}

// Resource is the display name used in errors.
func (s *Store[E]) Resource() string {
	return s.resource
}

// Find loads a live record by id.
func (s *Store[E]) Find(ctx context.Context, id uint) (*E, error) {
	defer observability.TrackQuery("find", s.table)()
	return s.first(s.db.WithContext(ctx), id)
}

// FindForUpdate loads a live record by id and row-locks it where supported.
func (s *Store[E]) FindForUpdate(ctx context.Context, id uint) (*E, error) {
	defer observability.TrackQuery("find_for_update", s.table)()
	return s.first(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (s *Store[E]) first(q *gorm.DB, id uint) (*E, error) {
	record := new(E)
	if err := q.First(record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError(s.resource, id)
		}
		return nil, models.NewInternalError(err)
	}
	return record, nil
}

// Create inserts record.
func (s *Store[E]) Create(ctx context.Context, record *E) error {
	defer observability.TrackQuery("create", s.table)()
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return s.writeError(err)
	}
	return nil
}

// Save writes every column of record.
func (s *Store[E]) Save(ctx context.Context, record *E) error {
	defer observability.TrackQuery("save", s.table)()
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return s.writeError(err)
	}
	return nil
}

// Delete soft-deletes record.
func (s *Store[E]) Delete(ctx context.Context, record *E) error {
	defer observability.TrackQuery("delete", s.table)()
	if err := s.db.WithContext(ctx).Delete(record).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// Exists reports whether any live record matches scope.
func (s *Store[E]) Exists(ctx context.Context, scope Scope) (bool, error) {
	defer observability.TrackQuery("exists", s.table)()
	var count int64
	if err := s.db.WithContext(ctx).Model(new(E)).Scopes(scope).Limit(1).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

// List returns one page of live records matching scopes, ordered by order.
func (s *Store[E]) List(ctx context.Context, page, pageSize int, order string, scopes ...Scope) (*Page[E], error) {
	defer observability.TrackQuery("list", s.table)()
	page, pageSize = NormalizePage(page, pageSize)

	q := s.db.WithContext(ctx).Model(new(E))
	for _, scope := range scopes {
		q = q.Scopes(scope)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	items := make([]E, 0, pageSize)
	if err := q.Order(order).Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	lastPage := int((total + int64(pageSize) - 1) / int64(pageSize))
	if lastPage < 1 {
		lastPage = 1
	}
	return &Page[E]{Items: items, Page: page, PageSize: pageSize, Total: total, LastPage: lastPage}, nil
}

// CompareAndSet updates the record only while column still equals from. It
// reports whether the row was updated.
func (s *Store[E]) CompareAndSet(ctx context.Context, id uint, column string, from, to any, extra map[string]any) (bool, error) {
	defer observability.TrackQuery("compare_and_set", s.table)()
	updates := map[string]any{column: to}
	for k, v := range extra {
		updates[k] = v
	}
	res := s.db.WithContext(ctx).Model(new(E)).
		Where("id = ?", id).
		Where(fmt.Sprintf("%s = ?", column), from).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AcquireLock flips an active record to pending_approval in one conditional
// update. It fails with NOT_FOUND for missing records and PENDING_APPROVAL
// when another change already holds the flag.
func (s *Store[E]) AcquireLock(ctx context.Context, id uint) error {
	ok, err := s.CompareAndSet(ctx, id, "approval_status", models.EntityStatusActive, models.EntityStatusPendingApproval, nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if _, err := s.Find(ctx, id); err != nil {
		return err
	}
	return models.NewPendingApprovalError(s.resource, id)
}

// ReleaseLock returns a live record to active. Missing records are ignored.
func (s *Store[E]) ReleaseLock(ctx context.Context, id uint) error {
	_, err := s.CompareAndSet(ctx, id, "approval_status", models.EntityStatusPendingApproval, models.EntityStatusActive, nil)
	return err
}

// writeError maps a unique index violation to DUPLICATE_ENTRY.
func (s *Store[E]) writeError(err error) error {
	if isUniqueViolation(err) {
		return models.NewDuplicateEntryError(fmt.Sprintf("%s conflicts with an existing record", s.resource))
	}
	return models.NewInternalError(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// SQLite reports constraint failures only in the message.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
