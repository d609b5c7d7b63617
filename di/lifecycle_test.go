package di

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pool struct {
	events []string
	failAt string
}

func (p *pool) record(event string) error {
	p.events = append(p.events, event)
	if event == p.failAt {
		return errors.New(event + " failed")
	}
	return nil
}

func (p *pool) AfterPropertiesSet() error { return p.record("afterPropertiesSet") }
func (p *pool) Open() error               { return p.record("open") }
func (p *pool) Warm()                     { _ = p.record("warm") }
func (p *pool) Destroy() error            { return p.record("destroy") }
func (p *pool) Close() error              { return p.record("close") }
func (p *pool) Drain() error              { return p.record("drain") }

func TestLifecycleHooksOrder(t *testing.T) {
	p := &pool{}
	c := NewContainer()
	c.MustRegister(NewDefinition("pool", Instance(p),
		InitMethod("Open", "Warm"), DestroyMethod("Drain")))

	require.NoError(t, c.Refresh())
	assert.Equal(t, []string{"afterPropertiesSet", "open", "warm"}, p.events)

	p.events = nil
	require.NoError(t, c.Close())
	assert.Equal(t, []string{"destroy", "close", "drain"}, p.events)
}

func TestInitFailureDiscardsBean(t *testing.T) {
	p := &pool{failAt: "open"}
	c := NewContainer()
	c.MustRegister(NewDefinition("pool", Instance(p), InitMethod("Open")))

	err := c.Refresh()
	var creation *CreationError
	require.ErrorAs(t, err, &creation)
	assert.ErrorContains(t, err, "init method Open")
	assert.False(t, c.IsCreated("pool"))
}

func TestDestroyStopsAtFirstFailingHook(t *testing.T) {
	failing := &pool{failAt: "destroy"}
	healthy := &pool{}
	c := NewContainer()
	c.MustRegister(NewDefinition("healthy", Instance(healthy), DestroyMethod("Drain"), WithPriority(1)))
	c.MustRegister(NewDefinition("failing", Instance(failing), DestroyMethod("Drain"), WithPriority(2)))
	require.NoError(t, c.Refresh())
	failing.events, healthy.events = nil, nil

	err := c.Close()
	var disposal *DisposalError
	require.ErrorAs(t, err, &disposal)
	assert.Equal(t, "failing", disposal.Name)
	assert.Equal(t, []string{"destroy"}, failing.events)
	assert.Equal(t, []string{"destroy", "close", "drain"}, healthy.events)

	// 重复关闭没有副作用
	assert.NoError(t, c.Close())
}

func TestMissingHookMethod(t *testing.T) {
	c := NewContainer()
	c.MustRegister(NewDefinition("pool", Instance(&pool{}), InitMethod("Missing")))
	_, err := c.GetBean("pool")
	assert.ErrorContains(t, err, "no method Missing")
}

func TestUncreatedBeansAreNotDestroyed(t *testing.T) {
	p := &pool{}
	c := NewContainer()
	c.MustRegister(NewDefinition("pool", Instance(p), LazyInit()))
	require.NoError(t, c.Refresh())
	require.NoError(t, c.Close())
	assert.Empty(t, p.events)
}

func TestParseDestroyPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DestroyPolicy
		wantErr bool
	}{
		{"", DestroyContinue, false},
		{"continue", DestroyContinue, false},
		{"stop-at-proxy", DestroyStopAtProxy, false},
		{"halt", DestroyContinue, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDestroyPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithOptions(t *testing.T) {
	c := NewContainer(WithOptions(Options{AllowOverriding: true, DestroyPolicy: "stop-at-proxy"}))
	assert.True(t, c.allowOverride)
	assert.Equal(t, DestroyStopAtProxy, c.destroyPolicy)

	c.MustRegister(NewDefinition("a", Instance(&english{})))
	assert.NoError(t, c.Register(NewDefinition("a", Instance(&french{}))))
}
