package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/metrics"
)

// EnableMonitoringUnique identifies the "re-enable monitoring" inline button.
// The button payload is the tracked market id.
const EnableMonitoringUnique = "enable_mon"

// FormatAlert renders the alert message in Telegram HTML.
func FormatAlert(a domain.Alert) string {
	arrow := "📉"
	if a.Condition == domain.ConditionGE {
		arrow = "📈"
	}
	title := a.Title
	if title == "" {
		title = a.MarketID
	}
	return fmt.Sprintf(
		"🚨 <b>Market Alert!</b>\n\n%s <b>%s</b>\nCurrent Price: %.2f%%\nTarget: %d%%\n\nMonitoring has been disabled.",
		arrow, html.EscapeString(title), a.PricePercent, a.TargetPrice,
	)
}

// AlertMarkup builds the inline keyboard attached to an alert: a link to the
// market and a button that re-enables monitoring.
func AlertMarkup(a domain.Alert) *tb.ReplyMarkup {
	var rows [][]tb.InlineButton
	if a.URL != "" {
		rows = append(rows, []tb.InlineButton{{Text: "🔗 View on Polymarket", URL: a.URL}})
	}
	rows = append(rows, []tb.InlineButton{{
		Unique: EnableMonitoringUnique,
		Text:   "🔄 Re-enable Monitoring",
		Data:   strconv.FormatInt(a.TrackedID, 10),
	}})
	return &tb.ReplyMarkup{InlineKeyboard: rows}
}

// AlertSender implements domain.AlertNotifier. It delivers each alert to its
// owner's private chat, retrying with exponential backoff, and mirrors it to
// the operator channels.
type AlertSender struct {
	messenger   Messenger
	ops         *Notifier
	maxAttempts int
	retry       backoff.Backoff
	logger      *slog.Logger
}

var _ domain.AlertNotifier = (*AlertSender)(nil)

// NewAlertSender creates an AlertSender. ops may be nil.
func NewAlertSender(messenger Messenger, ops *Notifier, maxAttempts int, logger *slog.Logger) *AlertSender {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &AlertSender{
		messenger:   messenger,
		ops:         ops,
		maxAttempts: maxAttempts,
		retry: backoff.Backoff{
			Min:    250 * time.Millisecond,
			Max:    4 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		logger: logger.With(slog.String("component", "alert_sender")),
	}
}

// SendAlert delivers the alert to its owner. Only the owner delivery decides
// the returned error; the operator mirror is best-effort.
func (s *AlertSender) SendAlert(ctx context.Context, a domain.Alert) error {
	err := s.deliver(ctx, a)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	}

	if mirrorErr := s.ops.Notify(ctx, EventAlertFired,
		"Alert fired",
		fmt.Sprintf("user %d: %s at %.2f%% (target %s %d%%)",
			a.UserID, a.Title, a.PricePercent, a.Condition.Symbol(), a.TargetPrice),
	); mirrorErr != nil {
		s.logger.WarnContext(ctx, "ops mirror failed", slog.String("error", mirrorErr.Error()))
	}
	return err
}

func (s *AlertSender) deliver(ctx context.Context, a domain.Alert) error {
	to := &tb.User{ID: a.UserID}
	text := FormatAlert(a)
	opts := &tb.SendOptions{
		ParseMode:             tb.ModeHTML,
		ReplyMarkup:           AlertMarkup(a),
		DisableWebPagePreview: true,
	}

	b := s.retry
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		_, err := s.messenger.Send(to, text, opts)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.WarnContext(ctx, "alert delivery failed",
			slog.Int64("user_id", a.UserID),
			slog.Int64("tracked_id", a.TrackedID),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if permanent(err) {
			return fmt.Errorf("notify: deliver alert %d: %w", a.TrackedID, err)
		}
		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("notify: deliver alert %d: %w", a.TrackedID, ctx.Err())
		case <-time.After(b.Duration()):
		}
	}
	return fmt.Errorf("notify: deliver alert %d after %d attempt(s): %w", a.TrackedID, s.maxAttempts, lastErr)
}

// permanent reports whether Telegram rejected the send in a way a retry
// cannot fix: a blocked bot, a missing chat or a malformed request. Bot API
// errors telebot does not recognise are formatted as "telegram: <desc> (<code>)".
func permanent(err error) bool {
	var apiErr *tb.APIError
	if errors.As(err, &apiErr) {
		return permanentCode(apiErr.Code)
	}
	msg := err.Error()
	for _, code := range []int{400, 401, 403} {
		if strings.HasSuffix(msg, fmt.Sprintf("(%d)", code)) {
			return true
		}
	}
	return false
}

func permanentCode(code int) bool {
	return code == 400 || code == 401 || code == 403
}
