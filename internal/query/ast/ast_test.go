package ast

import (
	"testing"
)

func col(table, name string) *ColumnRef { return &ColumnRef{Table: table, Column: name} }
func lit(v interface{}) *Literal        { return &Literal{Value: v} }

func TestAnd_SkipsNil(t *testing.T) {
	if And() != nil || And(nil, nil) != nil {
		t.Fatal("And of nothing should be nil")
	}
	a := &BinaryExpr{Left: col("t0", "a"), Operator: OpEq, Right: lit(int64(1))}
	if And(nil, a) != a {
		t.Error("single operand should be returned unchanged")
	}
	b := &BinaryExpr{Left: col("t0", "b"), Operator: OpEq, Right: lit("x")}
	got := And(a, nil, b).String()
	want := "((t0.a = 1) AND (t0.b = 'x'))"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if Not(nil) != nil {
		t.Error("Not(nil) should be nil")
	}
}

func TestConjuncts(t *testing.T) {
	a := &BinaryExpr{Left: col("", "a"), Operator: OpEq, Right: lit(int64(1))}
	b := &BinaryExpr{Left: col("", "b"), Operator: OpEq, Right: lit(int64(2))}
	c := &BinaryExpr{Left: col("", "c"), Operator: OpEq, Right: lit(int64(3))}
	parts := Conjuncts(And(a, &ParenExpr{Expr: And(b, c)}))
	if len(parts) != 3 {
		t.Fatalf("expected 3 conjuncts, got %d", len(parts))
	}
	if len(Conjuncts(Or(a, b))) != 1 {
		t.Error("OR should not be split")
	}
}

func TestExtractPredicates(t *testing.T) {
	expr := And(
		&InExpr{Expr: col("t0", "day"), Values: []Expression{lit("20120101"), lit("20120201")}},
		Or(
			&BinaryExpr{Left: lit(int64(5)), Operator: OpLt, Right: col("t0", "count")},
			&IsNullExpr{Expr: col("t1", "name")},
		),
		Not(&LikeExpr{Expr: col("t0", "thing"), Pattern: lit("a%")}),
		&BetweenExpr{Expr: col("t0", "count"), Low: lit(int64(1)), High: lit(int64(9))},
	)

	preds := ExtractPredicates(expr)
	if len(preds) != 5 {
		t.Fatalf("expected 5 predicates, got %d", len(preds))
	}

	if preds[0].Type != PredicateIn || len(preds[0].Literals()) != 2 {
		t.Errorf("unexpected IN predicate: %+v", preds[0])
	}
	if preds[1].Operator != OpGt || preds[1].Value != int64(5) {
		t.Errorf("reversed comparison should read count > 5, got %+v", preds[1])
	}
	if preds[2].Type != PredicateIsNull || preds[2].Literals() != nil {
		t.Errorf("unexpected IS NULL predicate: %+v", preds[2])
	}
	if got := preds[4].Literals(); len(got) != 2 || got[0] != int64(1) || got[1] != int64(9) {
		t.Errorf("unexpected BETWEEN literals: %v", got)
	}

	day := FilterPredicates(preds, "t0", "day")
	if len(day) != 1 {
		t.Errorf("expected one predicate on t0.day, got %d", len(day))
	}
}

func TestExtractPredicates_IgnoresColumnComparisons(t *testing.T) {
	expr := &BinaryExpr{Left: col("t0", "id"), Operator: OpEq, Right: col("t1", "user_id")}
	if preds := ExtractPredicates(expr); len(preds) != 0 {
		t.Errorf("column comparison is not a literal predicate: %+v", preds)
	}
}

func TestReferencedTables(t *testing.T) {
	expr := And(
		&BinaryExpr{Left: col("t0", "a"), Operator: OpEq, Right: col("t2", "b")},
		&InExpr{Expr: col("t1", "c"), Values: []Expression{lit(int64(1))}},
	)
	tables := ReferencedTables(expr)
	for _, want := range []string{"t0", "t1", "t2"} {
		if !tables[want] {
			t.Errorf("missing %s in %v", want, tables)
		}
	}
}

func TestSelectStatement_String(t *testing.T) {
	limit := int64(4)
	s := &SelectStatement{
		Columns: []SelectColumn{{Expr: col("t0", "name")}, {Expr: col("t1", "last_name"), Alias: "t1__last_name"}},
		From:    &TableRef{Name: "thing", Alias: "t0"},
		Joins: []JoinClause{{Kind: LeftJoin, Table: &TableRef{Name: "user", Alias: "t1"},
			On: &BinaryExpr{Left: col("t0", "last_name"), Operator: OpEq, Right: col("t1", "last_name")}}},
		Where:   &BinaryExpr{Left: col("t0", "name"), Operator: OpEq, Right: lit("it's")},
		OrderBy: []OrderByClause{{Expr: col("t0", "name")}},
		Limit:   &limit,
	}
	want := "SELECT t0.name, t1.last_name AS t1__last_name FROM thing AS t0 LEFT JOIN user AS t1 ON (t0.last_name = t1.last_name) WHERE (t0.name = 'it''s') ORDER BY t0.name ASC LIMIT 4"
	if got := s.String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestUpsertStatement_String(t *testing.T) {
	u := &UpsertStatement{
		Insert:          &InsertStatement{Table: "hits", Columns: []string{"day", "count"}, Values: []interface{}{"20120101", int64(1)}},
		ConflictColumns: []string{"day"},
		UpdateColumns:   []string{"count"},
		Strategy:        UpsertIncrement,
	}
	want := "INSERT INTO hits (day, count) VALUES ('20120101', 1) ON CONFLICT (day) DO UPDATE SET count = count + excluded.count"
	if got := u.String(); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}
