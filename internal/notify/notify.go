package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/gateway"
	"github.com/kastelov/lexitrain/internal/i18n"
	"github.com/kastelov/lexitrain/internal/store"
)

// sweepDeadline bounds one sweep iteration; unfinished work defers to the
// next tick.
const sweepDeadline = 60 * time.Second

// Store is the persistence surface the notifier reads.
type Store interface {
	ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]*store.User, error)
	ActiveProfile(ctx context.Context, userID string) (*store.Profile, error)
	GetProfileStats(ctx context.Context, profileID string, now time.Time) (*store.ProfileStats, error)
	SetNotifications(ctx context.Context, userID string, on bool) error
}

// Sender delivers reminders; *gateway.Gateway implements it.
type Sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) error
}

// Notifier periodically reminds inactive users to practice. Reminders are
// best-effort: a delivery refusal disables the user's notifications, any
// other error is logged and skipped.
type Notifier struct {
	store     Store
	sender    Sender
	cfg       config.NotifyConfig
	defaultTZ string
	start     config.ClockTime
	end       config.ClockTime
	clock     clock.Clock
	logger    *zap.Logger
}

// New creates a notifier. The window strings were validated at config load.
func New(st Store, sender Sender, cfg config.NotifyConfig, defaultTZ string, clk clock.Clock, logger *zap.Logger) (*Notifier, error) {
	start, err := config.ParseClock(cfg.WindowStart)
	if err != nil {
		return nil, err
	}
	end, err := config.ParseClock(cfg.WindowEnd)
	if err != nil {
		return nil, err
	}
	return &Notifier{
		store:     st,
		sender:    sender,
		cfg:       cfg,
		defaultTZ: defaultTZ,
		start:     start,
		end:       end,
		clock:     clk,
		logger:    logger,
	}, nil
}

// Run sweeps on a fixed period until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.SweepPeriod())
	defer ticker.Stop()

	n.logger.Info("notifier started",
		zap.Duration("period", n.cfg.SweepPeriod()),
		zap.String("window", n.cfg.WindowStart+"-"+n.cfg.WindowEnd))

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("notifier stopped")
			return
		case <-ticker.C:
			n.Sweep(ctx)
		}
	}
}

// Sweep sends one reminder to every notification-enabled user inactive for
// longer than the configured window, if their local clock is inside the
// delivery window.
func (n *Notifier) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepDeadline)
	defer cancel()

	now := n.clock.Now()
	users, err := n.store.ListInactiveUsers(ctx, now.Add(-n.cfg.InactiveWindow()))
	if err != nil {
		n.logger.Error("inactivity query failed", zap.Error(err))
		return
	}

	sent := 0
	for _, u := range users {
		if ctx.Err() != nil {
			n.logger.Warn("sweep deadline hit", zap.Int("sent", sent))
			return
		}
		if !n.inWindow(u.TZ, now) {
			continue
		}
		if n.remind(ctx, u, now) {
			sent++
		}
	}
	if sent > 0 {
		n.logger.Info("reminders sent", zap.Int("count", sent))
	}
}

func (n *Notifier) remind(ctx context.Context, u *store.User, now time.Time) bool {
	due := 0
	if profile, err := n.store.ActiveProfile(ctx, u.ID); err == nil {
		if ps, err := n.store.GetProfileStats(ctx, profile.ID, now); err == nil {
			due = ps.DueNow
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		n.logger.Warn("profile lookup failed", zap.String("user_id", u.ID), zap.Error(err))
	}

	err := n.sender.Send(ctx, &gateway.OutboundMessage{
		Platform:  u.Platform,
		ChannelID: u.ChannelID,
		Content:   i18n.T(u.InterfaceLang, "notify_nudge", due),
	})
	switch {
	case errors.Is(err, gateway.ErrBlockedByUser):
		n.logger.Info("user blocked the bot, disabling reminders",
			zap.String("user_id", u.ID))
		if err := n.store.SetNotifications(ctx, u.ID, false); err != nil {
			n.logger.Error("disable notifications failed",
				zap.String("user_id", u.ID), zap.Error(err))
		}
		return false
	case err != nil:
		n.logger.Warn("reminder delivery failed",
			zap.String("user_id", u.ID), zap.Error(err))
		return false
	}
	return true
}

// inWindow reports whether the user's local wall clock falls inside the
// delivery window. A window with start after end wraps past midnight.
func (n *Notifier) inWindow(tz string, now time.Time) bool {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		if loc, err = time.LoadLocation(n.defaultTZ); err != nil {
			loc = time.UTC
		}
	}
	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()

	start, end := n.start.Minutes(), n.end.Minutes()
	if start <= end {
		return m >= start && m < end
	}
	return m >= start || m < end
}
