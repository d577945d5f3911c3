package option

import (
	"fmt"
	"strings"

	"engagement-ledger/pkg/db/pagination"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it runs.
type QueryOption func(*gorm.DB) *gorm.DB

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE. SQLite has no
// row locks and the clause is skipped there.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		field := s.SortBy
		if field == "" {
			field = "created_at"
		}
		if len(s.Allow) > 0 && !s.Allow[field] {
			return db
		}
		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: field}, Desc: desc})
	}
}

func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		switch c.Operator {
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", c.Field), c.Value)
		case "":
			return db.Where(fmt.Sprintf("%s = ?", c.Field), c.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Operator), c.Value)
		}
	}
}

// WithEqual filters on field = value. Unlike a struct query it keeps the
// condition when value is the zero value.
func WithEqual(field string, value any) QueryOption {
	return ApplyOperator(Condition{Field: field, Operator: EQ, Value: value})
}

func WithID(id string) QueryOption {
	return WithEqual("id", id)
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

// NormalizeLimit clamps a page size to 1..250, defaulting to 10.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 250 {
		return 250
	}
	return limit
}

// ApplyPagination caps the page size and resumes after the cursor. A cursor
// carrying Seq pages on the seq column, otherwise on id; callers sort
// ascending on the same column. One extra row is fetched so
// pagination.BuildCursorPageInfo can tell whether more pages exist.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Cursor != "" {
			if c, err := pagination.DecodeCursor(p.Cursor); err == nil {
				switch {
				case c.Seq > 0:
					db = db.Where("seq > ?", c.Seq)
				case c.ID != "":
					db = db.Where("id > ?", c.ID)
				}
			}
		}
		return db.Limit(NormalizeLimit(p.Limit) + 1)
	}
}
