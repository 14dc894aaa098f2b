package models

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Page*Size within int for any valid size.
	MaxPage         = math.MaxInt32
)

// PageRequest selects a zero-based page.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request to valid bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows to skip.
func (p PageRequest) Offset() int { return p.Page * p.Size }

// Page is one slice of a larger result.
type Page[T any] struct {
	Items []T   `json:"content"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"totalElements"`
}

// MapPage converts the items of p with fn, stopping at the first error.
func MapPage[T, U any](p Page[T], fn func(T) (U, error)) (Page[U], error) {
	out := Page[U]{Items: make([]U, 0, len(p.Items)), Page: p.Page, Size: p.Size, Total: p.Total}
	for _, it := range p.Items {
		u, err := fn(it)
		if err != nil {
			return Page[U]{}, err
		}
		out.Items = append(out.Items, u)
	}
	return out, nil
}
