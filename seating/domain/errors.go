package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSeatAlreadyReserved место уже зарезервировано
	ErrSeatAlreadyReserved = errors.New("seat already reserved")
	// ErrSeatOutOfRange номер места не помещается в ряд
	ErrSeatOutOfRange = errors.New("seat out of range")
	// ErrUnknownCommand команда не поддерживается обработчиком
	ErrUnknownCommand = errors.New("unknown command")
)

// ValidationError команда отклонена бизнес-правилом. События не публикуются.
type ValidationError struct {
	SeatID SeatID
	Reason error
}

// Error реализует интерфейс error
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for seat %d: %v", e.SeatID, e.Reason)
}

// Unwrap возвращает причину ошибки
func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// IsValidationError проверяет, является ли err ошибкой валидации
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
