// Package notifier delivers rendered reminder texts to chat targets over
// the Telegram adapter. Delivery is best effort: rate limited, bounded by
// a per-send timeout, never retried.
package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"invbot/internal/transport"
	"invbot/pkg/logx"
)

// Resolver maps a target (branch name) to a chat id.
type Resolver interface {
	Resolve(target string) (int64, bool)
}

// Transport is the outbound half of the chat adapter.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Service struct {
	transport Transport
	resolver  Resolver
	limiter   *rate.Limiter
	timeout   time.Duration
	log       logx.Logger
}

func New(tr Transport, res Resolver, ratePerSec int, timeout time.Duration, log logx.Logger) *Service {
	if ratePerSec < 1 {
		ratePerSec = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		transport: tr,
		resolver:  res,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		timeout:   timeout,
		log:       log,
	}
}

// Send delivers text to the target once. The caller decides what a
// failure means; this layer only reports it.
func (s *Service) Send(ctx context.Context, target, text string) error {
	chatID, ok := s.resolver.Resolve(target)
	if !ok {
		return fmt.Errorf("unknown target %q", target)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.transport.SendText(sctx, chatID, text, nil); err != nil {
		return fmt.Errorf("send to %q (chat %d): %w", target, chatID, err)
	}
	s.log.Debug("notification delivered",
		logx.String("target", target), logx.Int64("chat_id", chatID))
	return nil
}
