// internal/app/store/storeutil/storeutil.go
package storeutil

import "go.mongodb.org/mongo-driver/mongo/options"

// DefaultLimit is used when a caller passes a non-positive page size.
const DefaultLimit = 20

// Paginate returns find options selecting the 1-based page of size limit.
func Paginate(limit, page int64) *options.FindOptions {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}
	return options.Find().SetLimit(limit).SetSkip((page - 1) * limit)
}

// Pages returns how many pages of size limit hold total items; at least 1.
func Pages(total, limit int64) int64 {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}
