package option

import (
	"strings"

	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// SortBy is a validated ORDER BY clause.
type SortBy struct {
	Field string
	Desc  bool
}

// WithQuerySortBy validates a user supplied sort against allowed columns.
// Unknown fields fall back to created_at descending.
func WithQuerySortBy(field, order string, allowed map[string]bool) SortBy {
	field = strings.ToLower(strings.TrimSpace(field))
	if !allowed[field] {
		return SortBy{Field: "created_at", Desc: true}
	}
	return SortBy{
		Field: field,
		Desc:  !strings.EqualFold(strings.TrimSpace(order), "asc"),
	}
}

func WithSortBy(sort SortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if sort.Field == "" {
			return db
		}
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		return db.Order(sort.Field + " " + dir).Order("id " + dir)
	})
}

// ApplyPagination limits the statement to one page plus a lookahead row.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := pagination.Size(int32(page.PageSize))
		if page.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil {
				db = db.Where("id < ?", cursor.ID)
			}
		}
		return db.Limit(int(size) + 1)
	})
}
