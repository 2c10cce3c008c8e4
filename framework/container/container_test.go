package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name     string
	log      *[]string
	startErr error
	running  bool
}

func (f *fakeComponent) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop(ctx context.Context) error {
	f.running = false
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func (f *fakeComponent) IsRunning() bool {
	return f.running
}

func newTestContainer() *Container {
	return NewContainer(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestContainer_GetSet(t *testing.T) {
	c := newTestContainer()

	require.NoError(t, Set(c, "answer", 42))
	assert.Error(t, Set(c, "answer", 43))

	v, err := Get[int](c, "answer")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Get[string](c, "answer")
	assert.Error(t, err)
	_, err = Get[int](c, "missing")
	assert.Error(t, err)
}

func TestContainer_StartsInDependencyOrder(t *testing.T) {
	c := newTestContainer()
	var log []string

	http := &fakeComponent{name: "http", log: &log}
	store := &fakeComponent{name: "store", log: &log}
	sinks := &fakeComponent{name: "sinks", log: &log}

	require.NoError(t, c.Register("http", http, "store", "sinks"))
	require.NoError(t, c.Register("store", store))
	require.NoError(t, c.Register("sinks", sinks, "store"))
	assert.Error(t, c.Register("store", store))

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, []string{"store", "sinks", "http"}, c.Running())

	got, err := Get[*fakeComponent](c, "store")
	require.NoError(t, err)
	assert.Same(t, store, got)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{
		"start:store", "start:sinks", "start:http",
		"stop:http", "stop:sinks", "stop:store",
	}, log)
	assert.Empty(t, c.Running())
}

func TestContainer_StartFailureRollsBack(t *testing.T) {
	c := newTestContainer()
	var log []string

	require.NoError(t, c.Register("store", &fakeComponent{name: "store", log: &log}))
	require.NoError(t, c.Register("http", &fakeComponent{name: "http", log: &log, startErr: errors.New("port in use")}, "store"))

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
	assert.Equal(t, []string{"start:store", "stop:store"}, log)
}

func TestContainer_DependencyErrors(t *testing.T) {
	c := newTestContainer()
	var log []string
	require.NoError(t, c.Register("a", &fakeComponent{name: "a", log: &log}, "b"))
	require.NoError(t, c.Register("b", &fakeComponent{name: "b", log: &log}, "a"))

	_, err := c.StartOrder()
	assert.ErrorContains(t, err, "circular dependency")

	c = newTestContainer()
	require.NoError(t, c.Register("a", &fakeComponent{name: "a", log: &log}, "ghost"))
	_, err = c.StartOrder()
	assert.ErrorContains(t, err, "unknown component")
}
