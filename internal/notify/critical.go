package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// LevelCritical marks failures that the operator must see even when not
// watching the logs: records at this level are forwarded to Telegram in
// addition to the normal handler chain.
const LevelCritical = slog.Level(12)

// Messenger is the subset of the notifier the handler needs.
type Messenger interface {
	TrySendMessage(ctx context.Context, text string)
}

// CriticalHandler wraps an slog.Handler and forwards critical records to a
// messenger. Forwarding is best-effort and never blocks the log call on
// delivery errors.
type CriticalHandler struct {
	slog.Handler
	messenger Messenger
}

// NewCriticalHandler wraps base so critical records also reach messenger.
func NewCriticalHandler(base slog.Handler, messenger Messenger) *CriticalHandler {
	return &CriticalHandler{Handler: base, messenger: messenger}
}

func (h *CriticalHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= LevelCritical && h.messenger != nil {
		text := fmt.Sprintf("Критическая ошибка\n\n%s | %s",
			r.Time.Format("02.01.2006 15:04:05"), r.Message)
		r.Attrs(func(a slog.Attr) bool {
			text += fmt.Sprintf("\n%s: %v", a.Key, a.Value)
			return true
		})
		h.messenger.TrySendMessage(ctx, text)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *CriticalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CriticalHandler{Handler: h.Handler.WithAttrs(attrs), messenger: h.messenger}
}

func (h *CriticalHandler) WithGroup(name string) slog.Handler {
	return &CriticalHandler{Handler: h.Handler.WithGroup(name), messenger: h.messenger}
}
