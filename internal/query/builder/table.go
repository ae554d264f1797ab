package builder

import (
	"strings"

	relerr "github.com/relmap/relmap/internal/errors"
	"github.com/relmap/relmap/internal/heading"
	"github.com/relmap/relmap/internal/query/ast"
	"github.com/relmap/relmap/internal/schema"
	"github.com/relmap/relmap/pkg/types"
)

// Join is one joined heading of a statement.
type Join struct {
	// Name is the dotted path from the root, e.g. "user" or "user.addresses".
	Name string
	// Label is the last path segment.
	Label       string
	Association *schema.Association
	// Parent is the join this one hangs off; nil when joined from the root.
	Parent  *Join
	From    string
	Alias   string
	Heading *heading.Heading
	// Entity is the entity owning Heading.
	Entity string
	// Child names the simple association for SimpleChild joins.
	Child      string
	Kind       ast.JoinKind
	Projected  bool
	Restricted bool

	path              string
	carriesProjection bool
}

// TypeName is the type of the objects the join produces.
func (j *Join) TypeName() string {
	if j.Child != "" {
		return j.Entity + "." + j.Child
	}
	return j.Entity
}

// on builds the join predicate in derivation order.
func (j *Join) on() ast.Expression {
	var parts []ast.Expression
	for _, p := range j.Association.JoinPairs() {
		parts = append(parts, &ast.BinaryExpr{
			Left:     &ast.ColumnRef{Table: j.From, Column: p.Root.Name()},
			Operator: ast.OpEq,
			Right:    &ast.ColumnRef{Table: j.Alias, Column: p.Target.Name()},
		})
	}
	return ast.And(parts...)
}

// Table is the root table of a script or a table joined from it.
type Table struct {
	b       *build
	heading *heading.Heading
	entity  string
	child   string
	alias   string
	join    *Join
}

// Alias returns the SQL alias of the table.
func (t *Table) Alias() string { return t.alias }

// Heading returns the heading the table is bound to.
func (t *Table) Heading() *heading.Heading { return t.heading }

// Join returns the join descriptor, or nil for the root table.
func (t *Table) Join() *Join { return t.join }

// TypeName is the type name of objects stored in the table.
func (t *Table) TypeName() string {
	if t.child != "" {
		return t.entity + "." + t.child
	}
	return t.entity
}

func (t *Table) broken() bool { return t.heading == nil }

// Attr returns a column of the table.
func (t *Table) Attr(name string) *Column {
	if t.broken() {
		return &Column{}
	}
	a, err := t.heading.Attribute(name)
	if err != nil {
		t.b.fail(err)
		return &Column{}
	}
	return &Column{table: t, attr: a}
}

// Entity joins the entity name associated with this table: a child
// entity referencing it, or a parent entity it references. Joining the
// same entity twice from the same table returns the same join.
func (t *Table) Entity(name string) *Table {
	if t.broken() {
		return t
	}
	path := t.path() + ">" + name
	if j, ok := t.b.byPath[path]; ok {
		return t.joined(j)
	}
	if t.child != "" {
		t.b.fail(relerr.NoAssociation(t.TypeName(), name))
		return &Table{b: t.b}
	}
	a, err := t.b.registry.Resolve(t.entity, name)
	if err != nil {
		t.b.fail(err)
		return &Table{b: t.b}
	}
	return t.joined(t.addJoin(path, name, a, name, ""))
}

// Child joins the simple association name of this table's entity.
func (t *Table) Child(name string) *Table {
	if t.broken() {
		return t
	}
	path := t.path() + "." + name
	if j, ok := t.b.byPath[path]; ok {
		return t.joined(j)
	}
	if t.child != "" {
		t.b.fail(relerr.HeadingNotFound(t.TypeName(), name))
		return &Table{b: t.b}
	}
	a, err := t.b.registry.ResolveChild(t.entity, name)
	if err != nil {
		t.b.fail(err)
		return &Table{b: t.b}
	}
	return t.joined(t.addJoin(path, name, a, t.entity, name))
}

func (t *Table) path() string {
	if t.join == nil {
		return ""
	}
	return t.join.path
}

func (t *Table) addJoin(path, label string, a *schema.Association, entity, child string) *Join {
	j := &Join{
		Name:        label,
		Label:       label,
		Association: a,
		Parent:      t.join,
		From:        t.alias,
		Alias:       t.b.nextAlias(),
		Heading:     a.Target,
		Entity:      entity,
		Child:       child,
		path:        path,
	}
	if t.join != nil {
		j.Name = t.join.Name + "." + label
	}
	t.b.joins = append(t.b.joins, j)
	t.b.byPath[path] = j
	return j
}

func (t *Table) joined(j *Join) *Table {
	return &Table{b: t.b, heading: j.Heading, entity: j.Entity, child: j.Child, alias: j.Alias, join: j}
}

// Is restricts the table to the row identified by obj. obj must be an
// instance of the table's type and carry its identity attributes.
func (t *Table) Is(obj *types.Object) ast.Expression {
	if t.broken() {
		return nil
	}
	actual := "<nil>"
	if obj != nil {
		actual = obj.TypeName()
	}
	if obj == nil || actual != t.TypeName() {
		t.b.fail(relerr.TypeMismatch(t.TypeName(), actual))
		return nil
	}

	var parts []ast.Expression
	for _, a := range t.heading.IdentityAttributes() {
		v, ok := obj.Attributes[a.Name()]
		if !ok {
			t.b.fail(relerr.InvalidValue(a.Name(), nil, "object is missing an identity attribute"))
			return nil
		}
		parts = append(parts, (&Column{table: t, attr: a}).Eq(v))
	}
	return ast.And(parts...)
}

// Path joins a dotted path of association names starting at this table,
// such as "user.addresses". Each step is a simple association of the
// current table when it has one by that name, otherwise an associated
// entity.
func (t *Table) Path(path string) *Table {
	cur := t
	for _, name := range strings.Split(path, ".") {
		if cur.broken() {
			return cur
		}
		if cur.child == "" && cur.hasChild(name) {
			cur = cur.Child(name)
		} else {
			cur = cur.Entity(name)
		}
	}
	return cur
}
