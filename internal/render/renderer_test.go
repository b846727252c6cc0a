package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"viewflow/internal/env"
	"viewflow/pkg/errors"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	dir := t.TempDir()
	config := `
global:
  catalog: main
dev:
  schema: dev_metrics
  warehouse_id: wh-dev
`
	path := filepath.Join(dir, "environments.yml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0600))
	return NewRenderer(env.NewManager(path))
}

func TestRenderSubstitutesVariables(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Render("source: {{.catalog}}.{{.schema}}.orders",
		map[string]interface{}{"catalog": "main", "schema": "sales"})
	require.NoError(t, err)
	assert.Equal(t, "source: main.sales.orders", out)
}

func TestRenderStrictUndefined(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.Render("source: {{.catalog}}.{{.schema}}.orders",
		map[string]interface{}{"catalog": "main"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTemplateRender))
}

func TestRenderIsReferentiallyTransparent(t *testing.T) {
	r := newTestRenderer(t)
	ctx := map[string]interface{}{"catalog": "main"}

	first, err := r.Render("{{.catalog}}", ctx)
	require.NoError(t, err)
	second, err := r.Render("{{.catalog}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderEmptyValueIsNotUndefined(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Render("[{{.schema}}]", map[string]interface{}{"schema": ""})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderFileMissing(t *testing.T) {
	r := newTestRenderer(t)

	_, err := r.RenderFile(filepath.Join(t.TempDir(), "absent.tmpl"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTemplateIO))
}

func TestIsTemplate(t *testing.T) {
	assert.True(t, IsTemplate("orders.yaml.tmpl"))
	assert.False(t, IsTemplate("orders.yaml"))
}

func TestProcessDefinitionTemplateFile(t *testing.T) {
	r := newTestRenderer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml.tmpl")
	def := `
version: "1.0"
source: "{{.catalog}}.{{.schema}}.orders"
dimensions:
  - name: region
    expr: region
measures:
  - name: total
    expr: SUM(amount)
`
	require.NoError(t, os.WriteFile(path, []byte(def), 0600))

	rendered, doc, err := r.ProcessDefinition(path, "dev")
	require.NoError(t, err)
	assert.Contains(t, rendered, "main.dev_metrics.orders")
	assert.Equal(t, "main.dev_metrics.orders", doc["source"])
}

func TestProcessDefinitionTemplateCanReachRawGlobal(t *testing.T) {
	r := newTestRenderer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml.tmpl")
	require.NoError(t, os.WriteFile(path,
		[]byte(`source: "{{.global.catalog}}.{{.schema}}.orders"`), 0600))

	rendered, _, err := r.ProcessDefinition(path, "dev")
	require.NoError(t, err)
	assert.Contains(t, rendered, "main.dev_metrics.orders")
}

func TestProcessDefinitionTemplateFailsOnUndefined(t *testing.T) {
	r := newTestRenderer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`source: "{{.no_such_key}}"`), 0600))

	_, _, err := r.ProcessDefinition(path, "dev")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTemplateRender))
}

func TestProcessDefinitionPlainFileSubstitutes(t *testing.T) {
	r := newTestRenderer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte(`source: "{{.catalog}}.{{.schema}}.orders"`), 0600))

	rendered, _, err := r.ProcessDefinition(path, "dev")
	require.NoError(t, err)
	assert.Contains(t, rendered, "main.dev_metrics.orders")
}

func TestProcessDefinitionPlainFileFallsBackOnBadTemplate(t *testing.T) {
	r := newTestRenderer(t)

	// template metacharacters the file did not intend as variables
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.yaml")
	content := `source: "main.sales.orders"
filter: "note != '{{ not_a_variable }}'"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	rendered, doc, err := r.ProcessDefinition(path, "dev")
	require.NoError(t, err)
	assert.Equal(t, content, rendered)
	assert.Equal(t, "main.sales.orders", doc["source"])
}

func TestProcessDefinitionPlainFileInvalidYAML(t *testing.T) {
	r := newTestRenderer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: [unclosed"), 0600))

	_, _, err := r.ProcessDefinition(path, "dev")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeParseFailed))
}
