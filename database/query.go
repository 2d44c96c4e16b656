package database

import "github.com/go-pg/pg/orm"

// SelectQueryOptions pages and orders list queries.
type SelectQueryOptions struct {
	Limit          int
	Offset         int
	OrderBy        string
	OrderDirection string
}

// Apply adds paging and ordering to q. A nil receiver leaves q unchanged,
// the direction defaults to ASC.
func (s *SelectQueryOptions) Apply(q *orm.Query) *orm.Query {
	if s == nil {
		return q
	}
	if s.Limit > 0 {
		q = q.Limit(s.Limit)
	}
	if s.Offset > 0 {
		q = q.Offset(s.Offset)
	}
	if s.OrderBy != "" {
		direction := s.OrderDirection
		if direction == "" {
			direction = "ASC"
		}
		q = q.Order(s.OrderBy + " " + direction)
	}
	return q
}
