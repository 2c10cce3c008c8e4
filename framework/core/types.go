// Package core предоставляет базовые типы для всех компонентов фреймворка.
package core

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	causationIDKey   contextKey = "causation_id"
)

// WithCorrelationID сохраняет correlation ID в контексте
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithCausationID сохраняет causation ID в контексте
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, causationIDKey, id)
}

// CorrelationID возвращает correlation ID из контекста
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// CausationID возвращает causation ID из контекста
func CausationID(ctx context.Context) string {
	id, _ := ctx.Value(causationIDKey).(string)
	return id
}

// EnsureCorrelationID возвращает контекст с correlation ID, создавая новый при отсутствии
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeModule    ComponentType = "module"
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeTransport ComponentType = "transport"
	ComponentTypeHandler   ComponentType = "handler"
)
