// Package telegram adapts the Telegram Bot API to notify.Transport.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/onnwee/live-herald/notify"
)

// DefaultTimeout bounds one sendMessage call.
const DefaultTimeout = 30 * time.Second

// Client holds bot settings and builds a fresh transport per delivery attempt.
type Client struct {
	Token string
	// ProxyURL routes Bot API traffic through an HTTP(S)/SOCKS5 proxy when set.
	ProxyURL string
	// APIEndpoint overrides tgbotapi.APIEndpoint (format "<base>/bot%s/%s").
	APIEndpoint string
	Timeout     time.Duration
}

// NewTransport implements notify.TransportFactory. Each call gets its own
// http.Transport so a stuck connection or proxy handle is dropped between attempts.
func (c *Client) NewTransport() (notify.Transport, error) {
	if c.Token == "" {
		return nil, errors.New("telegram bot token empty")
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	endpoint := c.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &botTransport{
		token:    c.Token,
		endpoint: endpoint,
		hc:       &http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

type botTransport struct {
	token    string
	endpoint string
	hc       *http.Client
}

// ctxDoer binds outgoing Bot API requests to the caller's context.
type ctxDoer struct {
	ctx context.Context
	hc  *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.hc.Do(req.WithContext(d.ctx))
}

// Send delivers one message. Bot API rejections and network failures come back
// as *notify.DeliveryError; anything else (e.g. an unparseable reply) is returned as is.
func (t *botTransport) Send(ctx context.Context, msg notify.Message) error {
	// Built by hand rather than tgbotapi.NewBotAPI, which would spend a getMe round trip per attempt.
	bot := &tgbotapi.BotAPI{Token: t.token, Client: ctxDoer{ctx: ctx, hc: t.hc}, Buffer: 100}
	bot.SetAPIEndpoint(t.endpoint)

	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ParseMode = msg.ParseMode
	cfg.DisableWebPagePreview = msg.DisablePreview
	_, err := bot.Send(cfg)
	if err == nil {
		return nil
	}
	if isDeliveryError(err) {
		return &notify.DeliveryError{Err: err}
	}
	return err
}

func isDeliveryError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
