package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"invbot/internal/transport"
	"invbot/pkg/logx"
)

type fakeTransport struct {
	sent []struct {
		chatID int64
		text   string
	}
	err         error
	hadDeadline bool
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.sent = append(f.sent, struct {
		chatID int64
		text   string
	}{chatID, text})
	return transport.MessageRef{ChatID: chatID, MessageID: 1}, nil
}

type mapResolver map[string]int64

func (m mapResolver) Resolve(target string) (int64, bool) {
	id, ok := m[target]
	return id, ok
}

func TestSendResolvesTarget(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := New(tr, mapResolver{"branch": -100}, 10, time.Second, logx.Nop())

	if err := s.Send(context.Background(), "branch", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(tr.sent) != 1 || tr.sent[0].chatID != -100 || tr.sent[0].text != "hello" {
		t.Errorf("sent = %+v", tr.sent)
	}
	if !tr.hadDeadline {
		t.Error("send should carry a per-send deadline")
	}
}

func TestSendUnknownTarget(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	s := New(tr, mapResolver{}, 10, time.Second, logx.Nop())

	if err := s.Send(context.Background(), "ghost", "x"); err == nil {
		t.Fatal("expected error for unknown target")
	}
	if len(tr.sent) != 0 {
		t.Error("nothing should be sent for an unknown target")
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("gateway down")
	tr := &fakeTransport{err: cause}
	s := New(tr, mapResolver{"b": 1}, 10, time.Second, logx.Nop())

	err := s.Send(context.Background(), "b", "x")
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
}

func TestSendHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	s := New(&fakeTransport{}, mapResolver{"b": 1}, 1, time.Second, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, "b", "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
