// Package monitor decides when a channel going live is worth announcing and
// drives the fixed-interval polling loop around that decision.
package monitor

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/onnwee/live-herald/telemetry"
	"github.com/onnwee/live-herald/twitchapi"
)

// StreamLookup reports the live streams of a channel; empty means offline.
type StreamLookup interface {
	GetStreams(ctx context.Context, login string) ([]twitchapi.Stream, error)
}

// Announcement is the go-live notification produced on an offline→live edge.
type Announcement struct {
	Channel  string
	Title    string
	Category string
	URL      string
}

// ChannelURL returns the public Twitch URL of a channel login.
func ChannelURL(channel string) string {
	return "https://twitch.tv/" + channel
}

// HTML renders the announcement with Telegram HTML markup. Stream fields are
// escaped since titles are free text.
func (a Announcement) HTML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎮 <b>%s</b> is live!\n", html.EscapeString(a.Channel))
	fmt.Fprintf(&b, "📺 <b>Title:</b> <i>%s</i>\n", html.EscapeString(a.Title))
	fmt.Fprintf(&b, "🕹 <b>Category:</b> <i>%s</i>\n", html.EscapeString(a.Category))
	fmt.Fprintf(&b, "🔗 <b>Link:</b> %s\n", html.EscapeString(a.URL))
	b.WriteString("<u>This notification was sent automatically by a bot</u>")
	return b.String()
}

// Poller remembers the last observed live state of one channel. The state is
// in memory only, so a restart during a stream announces it again.
type Poller struct {
	Streams StreamLookup
	Channel string

	live bool
}

// NewPoller returns a Poller that starts out assuming the channel is offline.
func NewPoller(streams StreamLookup, channel string) *Poller {
	return &Poller{Streams: streams, Channel: channel}
}

// Live reports the last observed state.
func (p *Poller) Live() bool { return p.live }

// PollOnce queries the channel once and returns an Announcement only on an
// offline→live transition. On error the state is left untouched.
func (p *Poller) PollOnce(ctx context.Context) (*Announcement, error) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("channel", p.Channel), slog.String("component", "poller"))
	streams, err := p.Streams.GetStreams(ctx, p.Channel)
	if err != nil {
		return nil, err
	}
	live := len(streams) > 0
	switch {
	case live && !p.live:
		// Twitch returns at most one stream per login; anything extra is ignored.
		s := streams[0]
		p.live = true
		log.Info("stream went live", slog.String("title", s.Title), slog.String("category", s.GameName))
		return &Announcement{
			Channel:  p.Channel,
			Title:    s.Title,
			Category: s.GameName,
			URL:      ChannelURL(p.Channel),
		}, nil
	case live:
		log.Debug("stream still live")
	case p.live:
		p.live = false
		log.Info("stream ended")
	default:
		log.Debug("stream offline")
	}
	return nil, nil
}
