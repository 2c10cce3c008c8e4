package infrastructure

import (
	"fmt"

	"github.com/akriventsev/theater/seating/config"
	"github.com/akriventsev/theater/seating/domain"
)

// NewCommandHandler создает доменный обработчик с политиками из конфигурации
func NewCommandHandler(cfg *config.Config) (*domain.CommandHandler, error) {
	policy, err := domain.ParseReservationPolicy(cfg.ReservationPolicy)
	if err != nil {
		return nil, err
	}

	var seats domain.SeatIDPolicy
	switch cfg.SeatPolicy {
	case config.SeatPolicyRowMajor:
		seats = domain.RowMajorSeatID{SeatsPerRow: cfg.SeatsPerRow}
	case config.SeatPolicyReference, "":
		seats = domain.ReferenceSeatID{}
	default:
		return nil, fmt.Errorf("unknown seat policy: %s", cfg.SeatPolicy)
	}

	return domain.NewCommandHandler(
		domain.WithSeatIDPolicy(seats),
		domain.WithReservationPolicy(policy),
	), nil
}
