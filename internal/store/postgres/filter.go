package postgres

import (
	"fmt"
	"strings"

	"github.com/MatweyL/Potok/internal/domain"
)

// buildWhere translates a domain.Filter (OR of AND groups) into a SQL WHERE
// clause and its positional arguments, starting placeholder numbering at
// argOffset+1. An empty filter produces "TRUE" so callers can always
// append "WHERE " + clause.
func buildWhere(f domain.Filter, argOffset int) (string, []interface{}) {
	if len(f.Groups) == 0 {
		return "TRUE", nil
	}

	var args []interface{}
	groupClauses := make([]string, 0, len(f.Groups))
	for _, g := range f.Groups {
		condClauses := make([]string, 0, len(g.Conditions))
		for _, c := range g.Conditions {
			clause, condArgs := buildCondition(c, argOffset+len(args)+1)
			condClauses = append(condClauses, clause)
			args = append(args, condArgs...)
		}
		if len(condClauses) == 0 {
			continue
		}
		groupClauses = append(groupClauses, "("+strings.Join(condClauses, " AND ")+")")
	}
	if len(groupClauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(groupClauses, " OR "), args
}

func buildCondition(c domain.Condition, nextArg int) (string, []interface{}) {
	field := pgIdent(c.Field)
	switch c.Operation {
	case domain.OpGT:
		return fmt.Sprintf("%s > $%d", field, nextArg), []interface{}{c.Value}
	case domain.OpLT:
		return fmt.Sprintf("%s < $%d", field, nextArg), []interface{}{c.Value}
	case domain.OpGTE:
		return fmt.Sprintf("%s >= $%d", field, nextArg), []interface{}{c.Value}
	case domain.OpLTE:
		return fmt.Sprintf("%s <= $%d", field, nextArg), []interface{}{c.Value}
	case domain.OpEQ:
		return fmt.Sprintf("%s = $%d", field, nextArg), []interface{}{c.Value}
	case domain.OpIN:
		return fmt.Sprintf("%s = ANY($%d)", field, nextArg), []interface{}{c.Value}
	case domain.OpIsNull:
		return fmt.Sprintf("%s IS NULL", field), nil
	case domain.OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", field), nil
	default:
		return "TRUE", nil
	}
}

// pgIdent quotes a field name as a SQL identifier. Filters only ever carry
// field names from this package's own query builders, never raw user
// input, so this is about correctness (reserved words, mixed case) rather
// than injection defense.
func pgIdent(field string) string {
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func buildOrderLimit(p domain.PaginationQuery) string {
	var b strings.Builder
	if p.OrderBy != "" {
		dir := "ASC"
		if p.Direction == domain.SortDescending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", pgIdent(p.OrderBy), dir)
	}
	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
	}
	if p.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", p.Offset)
	}
	return b.String()
}
