package climate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/model"
)

// System adapts the controller unit as a whole: the shared mode reported via
// the master zone. Commands target the master zone index.
type System struct {
	client    *airzone.Client
	masterIdx int
}

func NewSystem(client *airzone.Client, masterIdx int) *System {
	return &System{client: client, masterIdx: masterIdx}
}

// HVACMode returns the system-wide mode. Unlike a zone device the power flag
// of individual zones does not apply here; the stop code reads as off.
func (s *System) HVACMode() model.HVACMode {
	code, err := s.client.Mode()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot read system mode")
		return model.ModeOff
	}
	return model.ModeFromCode(code, true)
}

func (s *System) HVACModes() []model.HVACMode {
	return model.AllModes()
}

// SetHVACMode writes the system-wide mode through the master zone. Off maps
// to the controller's stop code.
func (s *System) SetHVACMode(ctx context.Context, mode model.HVACMode) error {
	code, ok := model.CodeForMode(mode)
	if !ok {
		return fmt.Errorf("unknown hvac mode %q", mode)
	}

	log.Info().
		Str("mode", string(mode)).
		Int("code", code).
		Msg("Setting system mode via master zone")
	return s.client.SetMode(ctx, s.masterIdx, code)
}

// Update refreshes the shared snapshot on behalf of every zone.
func (s *System) Update(ctx context.Context) {
	if err := s.client.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("System refresh failed, keeping previous snapshot")
	}
}
