package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/onnwee/live-herald/notify"
	"github.com/onnwee/live-herald/telemetry"
	"github.com/onnwee/live-herald/twitchapi"
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 300 * time.Second

// Notifier delivers a message and reports success; notify.Sender satisfies it.
type Notifier interface {
	Send(ctx context.Context, msg notify.Message) bool
}

// Loop runs one poll cycle at a time, forever. Announcements go to the group
// chat, failures to the admin chat.
type Loop struct {
	Poller      *Poller
	Notifier    Notifier
	GroupChatID int64
	AdminChatID int64
	Interval    time.Duration
	Clock       clockwork.Clock
	Status      *Status
}

// NewLoop returns a Loop with the default interval and a real clock.
func NewLoop(p *Poller, n Notifier, groupChatID, adminChatID int64) *Loop {
	return &Loop{
		Poller:      p,
		Notifier:    n,
		GroupChatID: groupChatID,
		AdminChatID: adminChatID,
		Interval:    DefaultInterval,
		Clock:       clockwork.NewRealClock(),
		Status:      NewStatus(p.Channel),
	}
}

func (l *Loop) clock() clockwork.Clock {
	if l.Clock != nil {
		return l.Clock
	}
	return clockwork.NewRealClock()
}

// Run announces startup to the admin chat, then cycles until ctx is done.
// Cycle failures never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	slog.Info("notification loop started", slog.String("channel", l.Poller.Channel), slog.Duration("interval", interval), slog.String("component", "loop"))
	l.alert(ctx, fmt.Sprintf("✅ Bot started, watching %s", ChannelURL(l.Poller.Channel)))
	for {
		if ctx.Err() != nil {
			return nil
		}
		l.Cycle(ctx)
		select {
		case <-ctx.Done():
			slog.Info("notification loop stopped", slog.String("component", "loop"))
			return nil
		case <-l.clock().After(interval):
		}
	}
}

// Cycle polls once and delivers whatever follows from it. Panics are
// recovered and reported like errors.
func (l *Loop) Cycle(ctx context.Context) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "loop"))
	start := l.clock().Now()
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("poll cycle panicked", slog.Any("err", err))
			if recorded {
				l.Status.fail(err)
			} else {
				l.Status.record(l.clock().Now(), l.Poller.Live(), err)
			}
			l.alert(ctx, fmt.Sprintf("⚠️ Stream check failed: %v", err))
		}
	}()

	ann, err := l.Poller.PollOnce(ctx)
	l.Status.record(l.clock().Now(), l.Poller.Live(), err)
	recorded = true
	if err != nil {
		if ctx.Err() != nil {
			log.Info("poll cycle interrupted by shutdown", slog.Any("err", err))
			return
		}
		var terr *twitchapi.TokenRefreshError
		var serr *twitchapi.StatusQueryError
		switch {
		case errors.As(err, &terr):
			log.Warn("no twitch access token; skipping cycle", slog.Any("err", err))
			l.alert(ctx, "❌ Could not obtain a Twitch access token")
		case errors.As(err, &serr):
			log.Warn("stream check failed", slog.String("kind", serr.Kind.String()), slog.Int("status", serr.StatusCode), slog.Any("err", err))
			l.alert(ctx, fmt.Sprintf("⚠️ Stream check failed: %v", err))
		default:
			log.Warn("stream check failed", slog.Any("err", err))
			l.alert(ctx, fmt.Sprintf("⚠️ Stream check failed: %v", err))
		}
		return
	}
	if ann != nil {
		// State is already live; a failed send is not retried on the next cycle.
		ok := l.Notifier.Send(ctx, notify.Message{
			ChatID:    l.GroupChatID,
			Text:      ann.HTML(),
			ParseMode: notify.ParseModeHTML,
		})
		if ok {
			l.Status.announced()
			log.Info("go-live notification sent", slog.Int64("chat_id", l.GroupChatID))
		} else {
			log.Error("go-live notification not delivered", slog.Int64("chat_id", l.GroupChatID))
		}
	}
	log.Debug("poll cycle finished", slog.Duration("took", l.clock().Since(start)), slog.Bool("live", l.Poller.Live()))
}

// alert is best effort: an undelivered alert is logged by the sender and never re-alerted.
func (l *Loop) alert(ctx context.Context, text string) {
	if l.AdminChatID == 0 {
		return
	}
	l.Notifier.Send(ctx, notify.Message{ChatID: l.AdminChatID, Text: text, DisablePreview: true})
}
