package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_market_pulse/internal/domain"
	"go.uber.org/zap"
)

// AlertCooldown is the minimum spacing between notifications for the
// same alert. Qualifying ticks inside the window are dropped.
const AlertCooldown = 60 * time.Second

// AlertService evaluates persisted alerts against live ticks.
//
// The cooldown map lives in memory only: a restart re-arms every alert
// immediately. That matches the source product behaviour and keeps the
// hot path free of storage writes.
type AlertService struct {
	repo     domain.AlertRepository
	notifier domain.Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	alerts    []*domain.Alert
	lastFired map[string]time.Time // alert ID -> last notification
	latest    map[string]domain.Tick
	muted     bool

	timeNow func() time.Time // for tests
}

func NewAlertService(repo domain.AlertRepository, notifier domain.Notifier, logger *zap.Logger) *AlertService {
	return &AlertService{
		repo:      repo,
		notifier:  notifier,
		logger:    logger,
		lastFired: make(map[string]time.Time),
		latest:    make(map[string]domain.Tick),
		timeNow:   time.Now,
	}
}

// Reload refreshes the in-memory alert list from storage. Called at
// startup and after every mutation.
func (s *AlertService) Reload(ctx context.Context) error {
	alerts, err := s.repo.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("reload alerts: %w", err)
	}
	s.mu.Lock()
	s.alerts = alerts
	s.mu.Unlock()
	return nil
}

// Create persists a new alert and arms it immediately.
func (s *AlertService) Create(ctx context.Context, coinID string, typ domain.AlertType, op domain.AlertOp, value float64) (*domain.Alert, error) {
	switch typ {
	case domain.AlertPrice, domain.AlertPct24h, domain.AlertVol24h:
	default:
		return nil, fmt.Errorf("unknown alert type %q", typ)
	}
	if op != domain.OpAbove && op != domain.OpBelow {
		return nil, fmt.Errorf("unknown alert op %q", op)
	}

	a := &domain.Alert{
		ID:        uuid.NewString(),
		CoinID:    coinID,
		Type:      typ,
		Op:        op,
		Value:     value,
		Enabled:   true,
		CreatedAt: s.timeNow(),
	}
	if err := s.repo.SaveAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("save alert: %w", err)
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// SetEnabled toggles an alert. A disabled alert still receives ticks
// but never triggers.
func (s *AlertService) SetEnabled(ctx context.Context, id string, enabled bool) error {
	a, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	a.Enabled = enabled
	if err := s.repo.UpdateAlert(ctx, a); err != nil {
		return err
	}
	return s.Reload(ctx)
}

func (s *AlertService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteAlert(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.lastFired, id)
	s.mu.Unlock()
	return s.Reload(ctx)
}

func (s *AlertService) List(ctx context.Context) ([]*domain.Alert, error) {
	return s.repo.ListAlerts(ctx)
}

// SetMuted suppresses notifications without touching alert state.
func (s *AlertService) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// LatestTick returns the most recent tick seen for a coin.
func (s *AlertService) LatestTick(coinID string) (domain.Tick, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.latest[coinID]
	return t, ok
}

// OnTick evaluates every enabled alert for the tick's coin. At most one
// notification per alert per cooldown window.
func (s *AlertService) OnTick(tick domain.Tick) {
	s.mu.Lock()
	s.latest[tick.ID] = tick

	now := s.timeNow()
	var fired []*domain.Alert
	for _, a := range s.alerts {
		if !a.Enabled || a.CoinID != tick.ID {
			continue
		}
		if now.Sub(s.lastFired[a.ID]) < AlertCooldown {
			continue
		}
		if !matches(a, tick) {
			continue
		}
		s.lastFired[a.ID] = now
		fired = append(fired, a)
	}
	muted := s.muted
	s.mu.Unlock()

	for _, a := range fired {
		s.logger.Info("alert triggered",
			zap.String("alert_id", a.ID),
			zap.String("coin", a.CoinID),
			zap.String("type", string(a.Type)),
			zap.Float64("threshold", a.Value))
		if muted {
			continue
		}
		s.notifier.Notify(
			fmt.Sprintf("Alert: %s", domain.BaseAsset(domain.PairSymbol(a.CoinID))),
			describeTrigger(a, tick),
		)
	}
}

func matches(a *domain.Alert, t domain.Tick) bool {
	var metric float64
	switch a.Type {
	case domain.AlertPrice:
		metric = t.Price
	case domain.AlertPct24h:
		metric = t.ChangePct24h
	case domain.AlertVol24h:
		metric = t.VolumeQuote24h
	default:
		return false
	}

	if a.Op == domain.OpAbove {
		return metric > a.Value
	}
	return metric < a.Value
}

func describeTrigger(a *domain.Alert, t domain.Tick) string {
	switch a.Type {
	case domain.AlertPrice:
		return fmt.Sprintf("Price %s %g USDT (now %g)", a.Op, a.Value, t.Price)
	case domain.AlertPct24h:
		return fmt.Sprintf("24h change %s %g%% (now %.2f%%)", a.Op, a.Value, t.ChangePct24h)
	default:
		return fmt.Sprintf("24h volume %s %g (now %g)", a.Op, a.Value, t.VolumeQuote24h)
	}
}
