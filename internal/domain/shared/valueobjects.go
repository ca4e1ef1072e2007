// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// Class and student identifiers are free-form slugs or UUIDs.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// ValidID reports whether s can be used as a student, class or teacher id.
func ValidID(s string) bool {
	return idRegex.MatchString(s)
}

// NormalizeID trims surrounding whitespace and validates the id.
func NormalizeID(domain, op, field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", NewDomainError(domain, op, ErrEmptyValue, field+" is required")
	}
	if !ValidID(v) {
		return "", NewDomainError(domain, op, ErrInvalidID, "invalid "+field)
	}
	return v, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// PP Value Object (Power Points)
// ═══════════════════════════════════════════════════════════════════════════

// PP is a balance of Power Points. Balances never go negative.
type PP int

const (
	MinPP PP = 0
	MaxPP PP = 10_000_000
)

// Int returns the underlying int value.
func (p PP) Int() int {
	return int(p)
}

// Apply adds delta to the balance, flooring at MinPP and capping at MaxPP.
// It returns the new balance and the delta that was actually applied.
func (p PP) Apply(delta int) (PP, int) {
	next := int(p) + delta
	if next < int(MinPP) {
		next = int(MinPP)
	}
	if next > int(MaxPP) {
		next = int(MaxPP)
	}
	return PP(next), next - int(p)
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}
