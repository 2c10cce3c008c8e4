package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

// MockCommand для тестирования
type MockCommand struct {
	name string
}

func (c MockCommand) CommandName() string {
	return c.name
}

// MockCommandHandler для тестирования
type MockCommandHandler struct {
	name    string
	handled bool
	err     error
}

func (h *MockCommandHandler) Handle(ctx context.Context, cmd Command) error {
	h.handled = true
	return h.err
}

func (h *MockCommandHandler) CommandName() string {
	return h.name
}

// MockQuery для тестирования
type MockQuery struct {
	name string
}

func (q MockQuery) QueryName() string {
	return q.name
}

// MockQueryHandler для тестирования
type MockQueryHandler struct {
	name    string
	handled bool
	result  interface{}
	err     error
}

func (h *MockQueryHandler) Handle(ctx context.Context, q Query) (interface{}, error) {
	h.handled = true
	return h.result, h.err
}

func (h *MockQueryHandler) QueryName() string {
	return h.name
}

// orderInterceptor записывает порядок вызова
type orderInterceptor struct {
	name  string
	order *[]string
}

func (m orderInterceptor) Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) error) error {
	*m.order = append(*m.order, m.name)
	return next(ctx, cmd)
}

// MockQueryInterceptor для тестирования
type MockQueryInterceptor struct {
	intercepted bool
}

func (m *MockQueryInterceptor) Intercept(ctx context.Context, q Query, next func(ctx context.Context, q Query) (interface{}, error)) (interface{}, error) {
	m.intercepted = true
	return next(ctx, q)
}

func TestInMemoryCommandBus_Send(t *testing.T) {
	bus := NewInMemoryCommandBus()
	handler := &MockCommandHandler{name: "test_command"}

	if err := bus.Register(handler); err != nil {
		t.Fatalf("Failed to register handler: %v", err)
	}

	if err := bus.Send(context.Background(), MockCommand{name: "test_command"}); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}

	if !handler.handled {
		t.Error("Expected handler to be called")
	}
}

func TestInMemoryCommandBus_Send_HandlerNotFound(t *testing.T) {
	bus := NewInMemoryCommandBus()

	err := bus.Send(context.Background(), MockCommand{name: "unknown_command"})
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("Expected ErrHandlerNotFound, got %v", err)
	}
}

func TestInMemoryCommandBus_Register_Duplicate(t *testing.T) {
	bus := NewInMemoryCommandBus()

	if err := bus.Register(&MockCommandHandler{name: "test_command"}); err != nil {
		t.Fatalf("Failed to register handler: %v", err)
	}
	if err := bus.Register(&MockCommandHandler{name: "test_command"}); err == nil {
		t.Error("Expected error when registering duplicate handler")
	}
}

func TestInMemoryCommandBus_MiddlewareChain(t *testing.T) {
	bus := NewInMemoryCommandBus()
	var order []string

	bus.WithMiddleware(orderInterceptor{name: "first", order: &order})
	bus.WithMiddleware(orderInterceptor{name: "second", order: &order})

	_ = bus.Register(CommandHandlerFunc{Name: "test_command", Fn: func(ctx context.Context, cmd Command) error {
		order = append(order, "handler")
		return nil
	}})

	if err := bus.Send(context.Background(), MockCommand{name: "test_command"}); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}

	want := []string{"first", "second", "handler"}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, order)
		}
	}
}

func TestInMemoryCommandBus_HandlerError(t *testing.T) {
	bus := NewInMemoryCommandBus()
	expected := errors.New("handler error")
	_ = bus.Register(&MockCommandHandler{name: "test_command", err: expected})

	err := bus.Send(context.Background(), MockCommand{name: "test_command"})
	if !errors.Is(err, expected) {
		t.Errorf("Expected %v, got %v", expected, err)
	}
}

func TestInMemoryCommandBus_Shutdown(t *testing.T) {
	bus := NewInMemoryCommandBus()
	_ = bus.Register(&MockCommandHandler{name: "test_command"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := bus.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if err := bus.Send(context.Background(), MockCommand{name: "test_command"}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}

func TestInMemoryCommandBus_ShutdownWaitsForInflight(t *testing.T) {
	bus := NewInMemoryCommandBus()
	started := make(chan struct{})
	release := make(chan struct{})

	_ = bus.Register(CommandHandlerFunc{Name: "slow", Fn: func(ctx context.Context, cmd Command) error {
		close(started)
		<-release
		return nil
	}})

	go func() { _ = bus.Send(context.Background(), MockCommand{name: "slow"}) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bus.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded while command is running, got %v", err)
	}

	close(release)
	if err := bus.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected shutdown to complete, got %v", err)
	}
}

func TestInMemoryQueryBus_Ask(t *testing.T) {
	bus := NewInMemoryQueryBus()
	handler := &MockQueryHandler{name: "test_query", result: "test_result"}

	if err := bus.Register(handler); err != nil {
		t.Fatalf("Failed to register handler: %v", err)
	}

	result, err := bus.Ask(context.Background(), MockQuery{name: "test_query"})
	if err != nil {
		t.Fatalf("Failed to ask query: %v", err)
	}
	if !handler.handled {
		t.Error("Expected handler to be called")
	}
	if result != "test_result" {
		t.Errorf("Expected test_result, got %v", result)
	}
}

func TestInMemoryQueryBus_Ask_HandlerNotFound(t *testing.T) {
	bus := NewInMemoryQueryBus()

	_, err := bus.Ask(context.Background(), MockQuery{name: "unknown_query"})
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Errorf("Expected ErrHandlerNotFound, got %v", err)
	}
}

func TestInMemoryQueryBus_WithMiddleware(t *testing.T) {
	bus := NewInMemoryQueryBus()
	interceptor := &MockQueryInterceptor{}
	bus.WithMiddleware(interceptor)
	_ = bus.Register(&MockQueryHandler{name: "test_query"})

	if _, err := bus.Ask(context.Background(), MockQuery{name: "test_query"}); err != nil {
		t.Fatalf("Failed to ask query: %v", err)
	}
	if !interceptor.intercepted {
		t.Error("Expected interceptor to be called")
	}
}

func TestInMemoryQueryBus_Shutdown(t *testing.T) {
	bus := NewInMemoryQueryBus()

	if err := bus.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := bus.Ask(context.Background(), MockQuery{name: "q"}); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
}
