package yamldef

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/di"
)

type store struct {
	DSN    string
	closed bool
}

func (s *store) Close() error {
	s.closed = true
	return nil
}

func (s *store) NewReport() *report { return &report{dsn: s.DSN} }

type report struct{ dsn string }

type repo struct {
	Store    *store
	PageSize int
	Label    string
}

type env map[string]any

func (e env) Resolve(key string, _ reflect.Type) (any, error) {
	if v, ok := e[key]; ok {
		return v, nil
	}
	return nil, di.ErrValueNotFound
}

const definitions = `
beans:
  - name: store
    priority: 1
    args:
      - literal: "file::memory:"
  - name: repo
    scope: prototype
    dependsOn: [store]
    properties:
      - field: Store
        autowire: true
      - field: PageSize
        value: repo.pageSize
      - field: Label
        value: repo.label
        optional: true
  - name: report
    factoryBean: store
    factoryMethod: NewReport
    lazy: true
    role: infrastructure
`

func factories() Factories {
	return Factories{
		"store": di.Constructor(func(dsn string) *store { return &store{DSN: dsn} }, "unset"),
		"repo":  di.Struct[repo](),
	}
}

func TestRegisterDefinitions(t *testing.T) {
	f, err := Parse([]byte(definitions))
	require.NoError(t, err)
	require.Len(t, f.Beans, 3)

	c := di.NewContainer(di.WithEnvironment(env{"repo.pageSize": 50}))
	require.NoError(t, f.Register(c, factories()))
	assert.Equal(t, []string{"store", "repo", "report"}, c.DefinitionNames())

	def, err := c.Definition("report")
	require.NoError(t, err)
	assert.True(t, def.LazyInit)
	assert.Equal(t, di.RoleInfrastructure, def.Role)

	require.NoError(t, c.Refresh())
	assert.False(t, c.IsCreated("report"))

	r1, err := di.GetNamed[*repo](c, "repo")
	require.NoError(t, err)
	r2, err := di.GetNamed[*repo](c, "repo")
	require.NoError(t, err)
	assert.NotSame(t, r1, r2)
	assert.Equal(t, 50, r1.PageSize)
	assert.Empty(t, r1.Label)
	assert.Equal(t, "file::memory:", r1.Store.DSN)
	assert.Same(t, r1.Store, r2.Store)

	rep, err := di.GetNamed[*report](c, "report")
	require.NoError(t, err)
	assert.Equal(t, "file::memory:", rep.dsn)

	require.NoError(t, c.Close())
	assert.True(t, r1.Store.closed)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitions), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "store", f.Beans[0].Name)
	require.NotNil(t, f.Beans[0].Priority)
	assert.Equal(t, 1, *f.Beans[0].Priority)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "beans:\n  - name: a\n    scop: prototype\n", "scop"},
		{"missing name", "beans:\n  - scope: prototype\n", "name is required"},
		{"missing factory", "beans:\n  - name: other\n", "no factory provided"},
		{"exclusive values", "beans:\n  - name: repo\n    properties:\n      - field: Store\n        ref: store\n        autowire: true\n", "exclusive"},
		{"no target", "beans:\n  - name: repo\n    properties:\n      - ref: store\n", "field or setter is required"},
		{"bad role", "beans:\n  - name: repo\n    role: admin\n", "unknown role"},
		{"optional literal", "beans:\n  - name: repo\n    properties:\n      - field: Label\n        literal: x\n        optional: true\n", "references only"},
		{"method without name", "beans:\n  - name: report\n    factoryBean: store\n", "factoryMethod"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			if err == nil {
				_, err = f.Definitions(factories())
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEmptyDocument(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Beans)
}
