package dialect

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
)

func userAndThing(t *testing.T) (*heading.Heading, *heading.Heading) {
	t.Helper()
	user, err := heading.Build("user", func(b *heading.Builder) {
		b.Text("first_name").Text("last_name").Integer("age").
			PrimaryKey("first_name", "last_name")
	})
	require.NoError(t, err)
	thing, err := heading.Build("thing", func(b *heading.Builder) {
		b.Serial("id").Text("name")
	})
	require.NoError(t, err)
	_, err = heading.Relate(user, "", thing, "", heading.Many)
	require.NoError(t, err)
	return user, thing
}

func TestSQLite_Select(t *testing.T) {
	limit := int64(4)
	s := &ast.SelectStatement{
		Distinct: true,
		Columns:  []ast.SelectColumn{{Expr: &ast.ColumnRef{Table: "t0", Column: "id"}}, {Expr: &ast.ColumnRef{Table: "t1", Column: "age"}, Alias: "t1__age"}},
		From:     &ast.TableRef{Name: "thing", Alias: "t0"},
		Joins: []ast.JoinClause{{
			Kind:  ast.LeftJoin,
			Table: &ast.TableRef{Name: "user", Alias: "t1"},
			On:    &ast.BinaryExpr{Left: &ast.ColumnRef{Table: "t0", Column: "first_name"}, Operator: ast.OpEq, Right: &ast.ColumnRef{Table: "t1", Column: "first_name"}},
		}},
		Where: ast.And(
			&ast.InExpr{Expr: &ast.ColumnRef{Table: "t0", Column: "name"}, Values: []ast.Expression{&ast.Literal{Value: "a"}, &ast.Literal{Value: "b"}}},
			&ast.IsNullExpr{Expr: &ast.ColumnRef{Table: "t1", Column: "age"}, Not: true},
		),
		OrderBy: []ast.OrderByClause{{Expr: &ast.ColumnRef{Table: "t0", Column: "id"}}},
		Limit:   &limit,
	}

	sql, args, err := SQLite{}.Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT "t0"."id", "t1"."age" AS "t1__age" FROM "thing" AS "t0" LEFT JOIN "user" AS "t1" ON ("t0"."first_name" = "t1"."first_name") WHERE ("t0"."name" IN (?, ?) AND "t1"."age" IS NOT NULL) ORDER BY "t0"."id" ASC LIMIT 4`, sql)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestPostgres_Placeholders(t *testing.T) {
	s := &ast.SelectStatement{
		Columns: []ast.SelectColumn{{Expr: &ast.ColumnRef{Column: "id"}}},
		From:    &ast.TableRef{Name: "thing"},
		Where: &ast.BetweenExpr{
			Expr: &ast.ColumnRef{Column: "id"},
			Low:  &ast.Literal{Value: int64(1)},
			High: &ast.Literal{Value: int64(9)},
		},
	}
	sql, args, err := Postgres{}.Select(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "thing" WHERE "id" BETWEEN $1 AND $2`, sql)
	assert.Equal(t, []any{int64(1), int64(9)}, args)
}

func TestCount(t *testing.T) {
	s := &ast.SelectStatement{
		Columns: []ast.SelectColumn{{Expr: &ast.ColumnRef{Column: "id"}}},
		From:    &ast.TableRef{Name: "thing"},
	}
	sql, _, err := SQLite{}.Count(s)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT "id" FROM "thing") AS "counted"`, sql)
}

func TestInsert_Returning(t *testing.T) {
	s := &ast.InsertStatement{Table: "thing", Columns: []string{"name"}, Values: []any{"x"}, Returning: "id"}

	sql, args, err := Postgres{}.Insert(s)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "thing" ("name") VALUES ($1) RETURNING "id"`, sql)
	assert.Equal(t, []any{"x"}, args)

	sql, _, err = SQLite{}.Insert(s)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "thing" ("name") VALUES (?)`, sql)
	assert.Equal(t, "id", s.Returning, "rendering must not modify the statement")
}

func TestUpsert_Strategies(t *testing.T) {
	insert := &ast.InsertStatement{Table: "hit_201201", Columns: []string{"day", "count"}, Values: []any{"20120101", int64(1)}}

	sql, _, err := SQLite{}.Upsert(&ast.UpsertStatement{
		Insert: insert, ConflictColumns: []string{"day"}, UpdateColumns: []string{"count"}, Strategy: ast.UpsertIncrement,
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "hit_201201" ("day", "count") VALUES (?, ?) ON CONFLICT ("day") DO UPDATE SET "count" = "hit_201201"."count" + excluded."count"`, sql)

	sql, _, err = Postgres{}.Upsert(&ast.UpsertStatement{
		Insert: insert, ConflictColumns: []string{"day"}, UpdateColumns: []string{"count"}, Strategy: ast.UpsertReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "hit_201201" ("day", "count") VALUES ($1, $2) ON CONFLICT ("day") DO UPDATE SET "count" = excluded."count"`, sql)

	_, _, err = SQLite{}.Upsert(&ast.UpsertStatement{Insert: insert, ConflictColumns: []string{"day"}, UpdateColumns: []string{"count"}, Strategy: "double"})
	assert.Error(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	where := &ast.BinaryExpr{Left: &ast.ColumnRef{Column: "id"}, Operator: ast.OpEq, Right: &ast.Literal{Value: int64(3)}}

	sql, args, err := Postgres{}.Update(&ast.UpdateStatement{
		Table: "thing",
		Set:   []ast.Assignment{{Column: "name", Value: "y"}, {Column: "age", Value: nil}},
		Where: where,
	})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "thing" SET "name" = $1, "age" = NULL WHERE ("id" = $2)`, sql)
	assert.Equal(t, []any{"y", int64(3)}, args)

	sql, args, err = SQLite{}.Delete(&ast.DeleteStatement{Table: "thing", Where: where})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "thing" WHERE ("id" = ?)`, sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestCreateTable_SQLite(t *testing.T) {
	_, thing := userAndThing(t)

	ddl := SQLite{}.CreateTable(thing, "thing")
	assert.Contains(t, ddl, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`)
	assert.Contains(t, ddl, `"first_name" TEXT`)
	assert.Contains(t, ddl, `FOREIGN KEY ("first_name", "last_name") REFERENCES "user" ("first_name", "last_name")`)
	assert.NotContains(t, ddl, "PRIMARY KEY (")
	assert.Empty(t, SQLite{}.ForeignKeys(thing, "thing"))
}

func TestCreateTable_Postgres(t *testing.T) {
	user, thing := userAndThing(t)

	ddl := Postgres{}.CreateTable(user, "user")
	assert.Contains(t, ddl, `"age" BIGINT`)
	assert.Contains(t, ddl, `PRIMARY KEY ("first_name", "last_name")`)

	ddl = Postgres{}.CreateTable(thing, "thing")
	assert.Contains(t, ddl, `"id" BIGSERIAL`)
	assert.NotContains(t, ddl, "FOREIGN KEY")

	fks := Postgres{}.ForeignKeys(thing, "thing")
	require.Len(t, fks, 1)
	assert.Equal(t, `ALTER TABLE "thing" ADD CONSTRAINT "fk_thing_user" FOREIGN KEY ("first_name", "last_name") REFERENCES "user" ("first_name", "last_name")`, fks[0])
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, Postgres{}.IsAlreadyExists(&pgconn.PgError{Code: "42P07"}))
	assert.True(t, Postgres{}.IsAlreadyExists(&pgconn.PgError{Code: "42710"}))
	assert.True(t, Postgres{}.IsAlreadyExists(fmt.Errorf("create hit_201201: %w",
		&pgconn.PgError{Code: "23505", ConstraintName: "pg_type_typname_nsp_index"})))
	assert.False(t, Postgres{}.IsAlreadyExists(&pgconn.PgError{Code: "23505", ConstraintName: "hit_pkey"}))
	assert.False(t, Postgres{}.IsAlreadyExists(errors.New("table exists")))

	assert.True(t, SQLite{}.IsAlreadyExists(errors.New(`table "hit_201201" already exists`)))
	assert.False(t, SQLite{}.IsAlreadyExists(errors.New("no such table")))
	assert.False(t, SQLite{}.IsAlreadyExists(nil))
}

func TestNew(t *testing.T) {
	d, err := New("sqlite3")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = New("postgres")
	require.NoError(t, err)
	assert.True(t, d.ReturnsGeneratedID())

	_, err = New("oracle")
	assert.Error(t, err)
}
