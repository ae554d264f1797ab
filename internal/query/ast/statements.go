package ast

import (
	"fmt"
	"strings"
)

// Statement represents a statement the dialects know how to render.
type Statement interface {
	statementNode()
	String() string
}

// JoinKind selects INNER or LEFT joins.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// String returns the SQL keyword of the join kind.
func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// SelectStatement represents a SELECT query.
type SelectStatement struct {
	Distinct bool
	Columns  []SelectColumn
	From     *TableRef
	Joins    []JoinClause
	Where    Expression
	OrderBy  []OrderByClause
	Limit    *int64
	Offset   *int64
}

func (s *SelectStatement) statementNode() {}

// String returns the SQL representation of the SELECT statement.
func (s *SelectStatement) String() string {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if s.Distinct {
		sb.WriteString("DISTINCT ")
	}

	cols := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		cols[i] = col.String()
	}
	sb.WriteString(strings.Join(cols, ", "))

	if s.From != nil {
		sb.WriteString(" FROM ")
		sb.WriteString(s.From.String())
	}

	for _, j := range s.Joins {
		sb.WriteString(" ")
		sb.WriteString(j.String())
	}

	if s.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.Where.String())
	}

	if len(s.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			orders[i] = o.String()
		}
		sb.WriteString(strings.Join(orders, ", "))
	}

	if s.Limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}

	if s.Offset != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", *s.Offset))
	}

	return sb.String()
}

// SelectColumn represents a column in the SELECT clause.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

// String returns the SQL representation of the select column.
func (c SelectColumn) String() string {
	if c.Alias != "" {
		return fmt.Sprintf("%s AS %s", c.Expr.String(), c.Alias)
	}
	return c.Expr.String()
}

// TableRef represents a table reference.
type TableRef struct {
	Name  string
	Alias string
}

// String returns the SQL representation of the table reference.
func (t *TableRef) String() string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.Name, t.Alias)
	}
	return t.Name
}

// JoinClause joins one table into a SELECT.
type JoinClause struct {
	Kind  JoinKind
	Table *TableRef
	On    Expression
}

// String returns the SQL representation of the join clause.
func (j JoinClause) String() string {
	return fmt.Sprintf("%s %s ON %s", j.Kind, j.Table, j.On)
}

// OrderByClause represents an ORDER BY clause item.
type OrderByClause struct {
	Expr Expression
	Desc bool
}

// String returns the SQL representation of the ORDER BY clause.
func (o OrderByClause) String() string {
	if o.Desc {
		return fmt.Sprintf("%s DESC", o.Expr.String())
	}
	return fmt.Sprintf("%s ASC", o.Expr.String())
}

// InsertStatement inserts one row.
type InsertStatement struct {
	Table   string
	Columns []string
	Values  []interface{}
	// Returning names a generated column to hand back, when the dialect
	// needs it spelled out.
	Returning string
}

func (s *InsertStatement) statementNode() {}

// String returns the SQL representation of the INSERT statement.
func (s *InsertStatement) String() string {
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = (&Literal{Value: v}).String()
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Table,
		strings.Join(s.Columns, ", "), strings.Join(vals, ", "))
}

// UpsertStrategy says how conflicting rows are updated.
type UpsertStrategy string

const (
	// UpsertReplace overwrites the listed columns with the new values.
	UpsertReplace UpsertStrategy = "replace"
	// UpsertIncrement adds the new values to the stored ones.
	UpsertIncrement UpsertStrategy = "increment"
)

// UpsertStatement inserts a row or, on a conflict over ConflictColumns,
// updates UpdateColumns according to Strategy.
type UpsertStatement struct {
	Insert          *InsertStatement
	ConflictColumns []string
	UpdateColumns   []string
	Strategy        UpsertStrategy
}

func (s *UpsertStatement) statementNode() {}

// String returns the SQL representation of the upsert.
func (s *UpsertStatement) String() string {
	sets := make([]string, len(s.UpdateColumns))
	for i, c := range s.UpdateColumns {
		if s.Strategy == UpsertIncrement {
			sets[i] = fmt.Sprintf("%s = %s + excluded.%s", c, c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", s.Insert,
		strings.Join(s.ConflictColumns, ", "), strings.Join(sets, ", "))
}

// Assignment sets one column in an UPDATE.
type Assignment struct {
	Column string
	Value  interface{}
}

// UpdateStatement updates rows of one table.
type UpdateStatement struct {
	Table string
	Set   []Assignment
	Where Expression
}

func (s *UpdateStatement) statementNode() {}

// String returns the SQL representation of the UPDATE statement.
func (s *UpdateStatement) String() string {
	sets := make([]string, len(s.Set))
	for i, a := range s.Set {
		sets[i] = fmt.Sprintf("%s = %s", a.Column, (&Literal{Value: a.Value}).String())
	}
	out := fmt.Sprintf("UPDATE %s SET %s", s.Table, strings.Join(sets, ", "))
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// DeleteStatement deletes rows of one table.
type DeleteStatement struct {
	Table string
	Where Expression
}

func (s *DeleteStatement) statementNode() {}

// String returns the SQL representation of the DELETE statement.
func (s *DeleteStatement) String() string {
	out := "DELETE FROM " + s.Table
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}
