package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current time in UTC truncated to the millisecond precision
// MongoDB stores.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// Pagination represents 1-based page options
type Pagination struct {
	Page     int64
	PageSize int64
}

const MaxPageSize = 200

// Normalize clamps page and size into valid ranges.
func (p *Pagination) Normalize() *Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p *Pagination) Skip() int64 {
	return (p.Page - 1) * p.PageSize
}

func (p *Pagination) Limit() int64 {
	return p.PageSize
}

// IsDuplicateKey reports a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
