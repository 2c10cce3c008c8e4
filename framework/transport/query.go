// Package transport предоставляет интерфейсы и реализации для работы с запросами CQRS.
package transport

import "context"

// Query представляет запрос CQRS
type Query interface {
	QueryName() string
}

// QueryHandler обработчик запросов
type QueryHandler interface {
	Handle(ctx context.Context, q Query) (interface{}, error)
	QueryName() string
}

// QueryInterceptor интерфейс для перехвата запросов
type QueryInterceptor interface {
	// Intercept вызывается перед выполнением запроса
	Intercept(ctx context.Context, q Query, next func(ctx context.Context, q Query) (interface{}, error)) (interface{}, error)
}

// QueryBus шина запросов
type QueryBus interface {
	Ask(ctx context.Context, q Query) (interface{}, error)
	Register(handler QueryHandler) error
}
