package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliSchema = `
entities:
  - name: hit
    attributes:
      - {name: day, domain: text}
      - {name: thing, domain: text}
      - {name: count, domain: integer}
    primary_key: [day, thing]
  - name: tag
    attributes:
      - {name: name, domain: text}
    primary_key: [name]
partitions:
  - {entity: hit, attribute: day, function: monthly}
`

type cli struct {
	t    *testing.T
	args []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	color.NoColor = true
	dir := t.TempDir()
	schema := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schema, []byte(cliSchema), 0o644))
	return &cli{t: t, args: []string{"--schema", schema, "--data-dir", filepath.Join(dir, "data")}}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, c.args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, strings.Join(args, " "))
	return out
}

func TestCLI_Workflow(t *testing.T) {
	c := newCLI(t)

	ddl := c.mustRun("ddl")
	assert.Contains(t, ddl, `CREATE TABLE "tag"`)
	assert.NotContains(t, ddl, `CREATE TABLE "hit"`)

	assert.Contains(t, c.mustRun("migrate"), "migrated 2 entities (1 partitioned)")

	c.mustRun("insert", "hit", `{"day":"20120101","thing":"a","count":1}`)
	c.mustRun("insert", "hit", `{"day":"20120202","thing":"a","count":5}`)
	c.mustRun("insert", "hit", `{"day":"20120101","thing":"a","count":2}`, "--upsert", "count", "--with", "increment")

	out := c.mustRun("query", "hit", "--where", "day = '20120101'")
	assert.Contains(t, out, `"count":3`)

	assert.Equal(t, "2\n", c.mustRun("query", "hit", "--count"))

	out = c.mustRun("query", "hit", "--order-by", "count DESC", "--limit", "1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"day":"20120202"`)

	out = c.mustRun("partitions", "hit")
	assert.Contains(t, out, "hit_201201")
	assert.Contains(t, out, "hit_201202")

	out = c.mustRun("export", "hit")
	assert.Contains(t, out, "hit/hit_201201.jsonl.sz")
	assert.Contains(t, out, "hit/hit_201202.jsonl.sz")

	c.mustRun("insert", "tag", `{"name":"x"}`)
	assert.Contains(t, c.mustRun("export", "tag"), "tag/tag.jsonl.sz")
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)
	c.mustRun("migrate")

	_, err := c.run("query", "ghost")
	assert.Error(t, err)
	_, err = c.run("insert", "hit", `{"thing":"a"}`)
	assert.Error(t, err)
	_, err = c.run("insert", "hit", `not json`)
	assert.Error(t, err)
	_, err = c.run("partitions", "tag")
	assert.Error(t, err)
	_, err = c.run("query")
	assert.Error(t, err)
}

func TestCLI_Version(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, "relmap version dev (commit: unknown)\n", c.mustRun("version"))
}
