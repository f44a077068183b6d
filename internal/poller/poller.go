package poller

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vinste/airzone-local/db"
	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/datadog"
	"github.com/vinste/airzone-local/internal/notifications"
)

// Notifier interface for sending fault notifications
type Notifier interface {
	ZoneFault(zoneName string, codes []string) error
	ZoneFaultCleared(zoneName string) error
}

type realNotifier struct{}

func (r *realNotifier) ZoneFault(zoneName string, codes []string) error {
	return notifications.ZoneFault(zoneName, codes)
}

func (r *realNotifier) ZoneFaultCleared(zoneName string) error {
	return notifications.ZoneFaultCleared(zoneName)
}

// Poller drives the fixed-interval refresh cycle: re-fetch the snapshot,
// emit metrics, record history, raise fault alerts and push the new state to
// stream subscribers.
type Poller struct {
	client   *airzone.Client
	database *sql.DB // nil disables history recording
	interval time.Duration
	timeout  time.Duration

	zoneName  func(systemID, zoneID int) string
	broadcast func([]airzone.Zone) // nil disables streaming

	notifier Notifier
	faulted  map[int]bool // zones currently alerted
}

func New(client *airzone.Client, database *sql.DB, interval, timeout time.Duration,
	zoneName func(systemID, zoneID int) string, broadcast func([]airzone.Zone)) *Poller {
	return &Poller{
		client:    client,
		database:  database,
		interval:  interval,
		timeout:   timeout,
		zoneName:  zoneName,
		broadcast: broadcast,
		notifier:  &realNotifier{},
		faulted:   make(map[int]bool),
	}
}

// NewForTest creates a poller with an injectable notifier.
func NewForTest(client *airzone.Client, database *sql.DB, timeout time.Duration,
	zoneName func(systemID, zoneID int) string, notifier Notifier) *Poller {
	return &Poller{
		client:   client,
		database: database,
		interval: time.Minute,
		timeout:  timeout,
		zoneName: zoneName,
		notifier: notifier,
		faulted:  make(map[int]bool),
	}
}

// Run blocks, polling on the fixed interval until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("Starting zone poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Zone poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one refresh cycle. A failed refresh is logged and counted;
// the previous snapshot keeps serving reads until the next cycle.
func (p *Poller) Poll(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Refresh(refreshCtx); err != nil {
		log.Error().Err(err).Msg("Zone refresh failed, keeping previous snapshot")
		datadog.Count("poll.failure", 1)
		return
	}
	datadog.Count("poll.success", 1)

	zones := p.client.Snapshot()
	now := time.Now()

	p.emitGauges(zones)
	p.recordHistory(now, zones)
	p.checkFaults(zones)

	if p.broadcast != nil {
		p.broadcast(zones)
	}
}

func (p *Poller) emitGauges(zones []airzone.Zone) {
	for i, z := range zones {
		tags := []string{fmt.Sprintf("zone:%s", p.zoneName(z.SystemID, z.ZoneID))}

		datadog.Gauge("zone.temperature", z.RoomTemp, tags...)
		datadog.Gauge("zone.setpoint", z.Setpoint, tags...)
		if z.Humidity != nil {
			datadog.Gauge("zone.humidity", *z.Humidity, tags...)
		}
		power := 0.0
		if z.On != 0 {
			power = 1.0
		}
		datadog.Gauge("zone.power", power, tags...)

		log.Debug().
			Int("zone_idx", i).
			Float64("temp", z.RoomTemp).
			Float64("setpoint", z.Setpoint).
			Int("mode", z.Mode).
			Bool("on", z.On != 0).
			Msg("Zone state")
	}

	if mode, err := p.client.Mode(); err == nil {
		datadog.Gauge("system.mode", float64(mode))
	}
}

func (p *Poller) recordHistory(at time.Time, zones []airzone.Zone) {
	if p.database == nil {
		return
	}
	if err := db.RecordSnapshot(p.database, at, zones); err != nil {
		log.Error().Err(err).Msg("Failed to record zone history")
	}
}

// checkFaults alerts once per fault episode: when a zone starts reporting
// fault codes, and again when it stops.
func (p *Poller) checkFaults(zones []airzone.Zone) {
	for i, z := range zones {
		codes := z.FaultCodes()
		name := p.zoneName(z.SystemID, z.ZoneID)

		if len(codes) > 0 && !p.faulted[i] {
			p.faulted[i] = true
			log.Warn().Str("zone", name).Strs("codes", codes).Msg("Zone reporting controller faults")
			if err := p.notifier.ZoneFault(name, codes); err != nil {
				log.Error().Err(err).Str("zone", name).Msg("Failed to send fault notification")
			}
		}

		if len(codes) == 0 && p.faulted[i] {
			delete(p.faulted, i)
			log.Info().Str("zone", name).Msg("Zone faults cleared")
			if err := p.notifier.ZoneFaultCleared(name); err != nil {
				log.Error().Err(err).Str("zone", name).Msg("Failed to send fault-cleared notification")
			}
		}
	}
}
