// Package pagination holds the limit/offset clamping and sort whitelisting shared by repositories.
//
// Sort expressions are built from user input, so every column is checked against a whitelist
// before it reaches the query.
package pagination

import (
	"strings"
)

const (
	MaxPageSize   = 100
	MaxOffset     = 100000
	DefaultLimit  = 25
	DefaultOffset = 0
)

// SanitizeSortOrder keeps only "column [ASC|DESC]" parts whose column is whitelisted.
func SanitizeSortOrder(sortOrder string, columnWhitelist map[string]bool, defaultSort string) string {
	if sortOrder == "" {
		return defaultSort
	}

	var validParts []string
	for _, part := range strings.Split(sortOrder, ",") {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}

		column := strings.ToLower(tokens[0])
		direction := "ASC"
		if len(tokens) > 1 {
			dir := strings.ToUpper(tokens[1])
			if dir == "DESC" || dir == "ASC" {
				direction = dir
			}
		}

		if columnWhitelist[column] {
			validParts = append(validParts, column+" "+direction)
		}
	}

	if len(validParts) == 0 {
		return defaultSort
	}
	return strings.Join(validParts, ", ")
}

// ClampPaginationParams ensures limit and offset are within safe bounds
func ClampPaginationParams(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = DefaultOffset
	} else if offset > MaxOffset {
		offset = MaxOffset
	}

	return limit, offset
}

var OrderSortColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"status":     true,
	"name":       true,
	"rate":       true,
}

var GroupSortColumns = map[string]bool{
	"name":       true,
	"created_at": true,
}

var UserSortColumns = map[string]bool{
	"username":   true,
	"email":      true,
	"full_name":  true,
	"created_at": true,
}
