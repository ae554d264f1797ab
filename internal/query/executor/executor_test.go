package executor

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relmap/relmap/internal/dialect"
	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/observability"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/query/builder"
	"github.com/relmap/relmap/internal/schema"
	"github.com/relmap/relmap/internal/store"
	"github.com/relmap/relmap/pkg/types"
)

type fixture struct {
	registry *schema.Registry
	conn     *store.SQLite
	exec     *Executor
	stats    *observability.QueryStats
}

// newFixture creates user (with addresses) and item tables in a fresh
// SQLite database.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	r := schema.NewRegistry()
	_, err := r.RegisterHeading("user", "", func(b *heading.Builder) {
		b.Text("first_name").Text("last_name").Integer("age").PrimaryKey("first_name", "last_name")
	})
	require.NoError(t, err)
	_, err = r.RegisterHeading("user", "addresses", func(b *heading.Builder) {
		b.Text("city").Text("street").Many()
	})
	require.NoError(t, err)
	_, err = r.RegisterHeading("item", "", func(b *heading.Builder) {
		b.Integer("id").Text("name").PrimaryKey("id")
	})
	require.NoError(t, err)
	r.Freeze()

	conn, err := store.OpenSQLite(filepath.Join(t.TempDir(), "exec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	d := dialect.SQLite{}
	ctx := context.Background()
	for _, e := range r.Ordered() {
		_, err := conn.Exec(ctx, d.CreateTable(e.Base(), e.Base().Name()))
		require.NoError(t, err)
		for _, c := range e.Children() {
			_, err := conn.Exec(ctx, d.CreateTable(c.Heading, c.Heading.Name()))
			require.NoError(t, err)
		}
	}

	stats := observability.NewQueryStats(time.Hour)
	return &fixture{registry: r, conn: conn, exec: New(conn, d, WithStats(stats)), stats: stats}
}

func (f *fixture) mustExec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := f.conn.Exec(context.Background(), query, args...)
	require.NoError(t, err)
}

func (f *fixture) seedUsers(t *testing.T) {
	t.Helper()
	f.mustExec(t, `INSERT INTO "user" (first_name, last_name, age) VALUES ('John', 'Smith', 40), ('Ann', 'Jones', 31)`)
	f.mustExec(t, `INSERT INTO user_addresses (first_name, last_name, city, street) VALUES
		('John', 'Smith', 'Paris', 'Rue A'),
		('John', 'Smith', 'Lyon', 'Rue B')`)
}

// seedItems inserts items 1..n in a shuffled order.
func (f *fixture) seedItems(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := (i*5)%n + 1
		f.mustExec(t, `INSERT INTO item (id, name) VALUES (?, ?)`, id, fmt.Sprintf("item-%d", id))
	}
}

func (f *fixture) query(t *testing.T, entity string, script builder.Script) *builder.Query {
	t.Helper()
	q, err := builder.New(f.registry, entity, script)
	require.NoError(t, err)
	return q
}

func (f *fixture) statement(t *testing.T, entity string, script builder.Script) *builder.Statement {
	t.Helper()
	stmt, err := f.query(t, entity, script).Build("")
	require.NoError(t, err)
	return stmt
}

func TestSelect_DecodesRootRows(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)

	objs, err := f.exec.Select(context.Background(), f.statement(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Where(u.Attr("age").Gt(35))
	}))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "user", objs[0].Entity)
	assert.Equal(t, "John", objs[0].Get("first_name"))
	assert.Equal(t, int64(40), objs[0].Get("age"))
	assert.Nil(t, objs[0].Associations)
}

func TestSelect_GroupsProjectedChildren(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)

	objs, err := f.exec.Select(context.Background(), f.statement(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Project(u.Child("addresses"))
		c.OrderBy(u.Attr("first_name").Asc())
	}))
	require.NoError(t, err)
	require.Len(t, objs, 2)

	ann, john := objs[0], objs[1]
	assert.Equal(t, "Ann", ann.Get("first_name"))
	assert.Empty(t, ann.Many("addresses"), "a LEFT JOIN miss must not produce an object")

	addrs := john.Many("addresses")
	require.Len(t, addrs, 2)
	cities := []any{addrs[0].Get("city"), addrs[1].Get("city")}
	assert.ElementsMatch(t, []any{"Paris", "Lyon"}, cities)
	assert.Equal(t, "user.addresses", addrs[0].TypeName())
}

func TestSelect_RestrictionJoinDoesNotRepeatRoots(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)

	objs, err := f.exec.Select(context.Background(), f.statement(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Where(u.Child("addresses").Attr("street").Like("Rue%"))
	}))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "Smith", objs[0].Get("last_name"))
}

func TestCount(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	n, err := f.exec.Count(ctx, f.statement(t, "user", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = f.exec.Count(ctx, f.statement(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Where(u.Child("addresses").Attr("city").In("Paris", "Lyon"))
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCursor_Batches(t *testing.T) {
	f := newFixture(t)
	f.seedItems(t, 9)
	ctx := context.Background()

	cur, err := f.exec.NewCursor(f.query(t, "item", nil), "", 4)
	require.NoError(t, err)

	var sizes []int
	var ids []any
	for {
		batch, err := cur.Next(ctx)
		require.NoError(t, err)
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch))
		for _, o := range batch {
			ids = append(ids, o.Get("id"))
		}
	}
	assert.Equal(t, []int{4, 4, 1}, sizes)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7), int64(8), int64(9)}, ids)

	batch, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, batch, "an exhausted cursor stays exhausted")
}

func TestCursor_ExactMultiple(t *testing.T) {
	f := newFixture(t)
	f.seedItems(t, 8)
	ctx := context.Background()

	cur, err := f.exec.NewCursor(f.query(t, "item", nil), "", 4)
	require.NoError(t, err)
	var sizes []int
	for {
		batch, err := cur.Next(ctx)
		require.NoError(t, err)
		if batch == nil {
			break
		}
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{4, 4}, sizes)
}

func TestEach_YieldsInPrimaryKeyOrder(t *testing.T) {
	f := newFixture(t)
	f.seedItems(t, 9)

	var names []any
	for obj, err := range f.exec.Each(context.Background(), f.query(t, "item", nil), "", 4) {
		require.NoError(t, err)
		names = append(names, obj.Get("name"))
	}
	require.Len(t, names, 9)
	assert.Equal(t, "item-1", names[0])
	assert.Equal(t, "item-9", names[8])
}

func TestEach_StopsEarly(t *testing.T) {
	f := newFixture(t)
	f.seedItems(t, 9)

	n := 0
	for _, err := range f.exec.Each(context.Background(), f.query(t, "item", nil), "", 2) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestCursor_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.exec.NewCursor(f.query(t, "item", nil), "", 0)
	assert.ErrorIs(t, err, relerr.ErrInvalidBatch)

	cur, err := f.exec.NewCursor(f.query(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Project(u.Child("addresses"))
	}), "", 10)
	require.NoError(t, err)
	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, relerr.ErrInvalidBatch)

	for _, err := range f.exec.Each(ctx, f.query(t, "item", nil), "", -1) {
		assert.ErrorIs(t, err, relerr.ErrInvalidBatch)
	}
}

func TestExecutor_RecordsPredicates(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)

	_, err := f.exec.Select(context.Background(), f.statement(t, "user", func(c *builder.Conditions, u *builder.Table) {
		c.Where(u.Attr("age").Gt(20), u.Child("addresses").Attr("city").In("Paris"))
	}))
	require.NoError(t, err)

	top := f.stats.GetTopPredicates(10)
	require.Len(t, top, 2)
	cols := map[string]map[string]int{}
	for _, s := range top {
		cols[s.Column] = s.Operators
	}
	assert.Equal(t, 1, cols["user.age"][">"])
	assert.Equal(t, 1, cols["user.addresses.city"]["IN"])
}

func TestSortObjects(t *testing.T) {
	objs := []*types.Object{
		types.NewObject("item", types.Row{"id": int64(3), "name": "b"}),
		types.NewObject("item", types.Row{"id": int64(1), "name": nil}),
		types.NewObject("item", types.Row{"id": int64(2), "name": "b"}),
		types.NewObject("item", types.Row{"id": int64(4), "name": "a"}),
	}

	SortObjects(objs,
		ast.OrderByClause{Expr: &ast.ColumnRef{Column: "name"}, Desc: true},
		ast.OrderByClause{Expr: &ast.ColumnRef{Table: builder.RootAlias, Column: "id"}},
	)

	var ids []any
	for _, o := range objs {
		ids = append(ids, o.Get("id"))
	}
	assert.Equal(t, []any{int64(2), int64(3), int64(4), int64(1)}, ids)
}

func TestCompareValues(t *testing.T) {
	now := time.Now()
	tests := []struct {
		a, b any
		want int
	}{
		{nil, nil, 0},
		{nil, int64(1), -1},
		{int64(2), 1.5, 1},
		{int64(1<<53 + 1), int64(1 << 53), 1},
		{int64(math.MaxInt64), int64(math.MaxInt64 - 1), 1},
		{"a", "b", -1},
		{now, now.Add(time.Second), -1},
		{false, true, -1},
		{true, true, 0},
	}
	for _, tt := range tests {
		if got := compareValues(tt.a, tt.b); got != tt.want {
			t.Errorf("compareValues(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
