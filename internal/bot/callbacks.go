package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"
)

func parseID(data string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bot: id %q: %w", data, errBadPayload)
	}
	return id, nil
}

// parseSetPrice splits a "<tracked id>|<target>" payload.
func parseSetPrice(data string) (int64, int, error) {
	idPart, pricePart, ok := strings.Cut(data, "|")
	if !ok {
		return 0, 0, fmt.Errorf("bot: set price %q: %w", data, errBadPayload)
	}
	id, err := parseID(idPart)
	if err != nil {
		return 0, 0, err
	}
	price, err := strconv.Atoi(pricePart)
	if err != nil {
		return 0, 0, fmt.Errorf("bot: set price %q: %w", data, errBadPayload)
	}
	return id, price, nil
}

func (b *Bot) onPick(ctx context.Context, c *tb.Callback) error {
	d, ok := b.draft(c.Sender.ID)
	if !ok || d.URL == "" {
		return errSelectionExpired
	}
	if err := b.offerMarket(ctx, c.Sender, c.Message, d.URL, strings.TrimSpace(c.Data)); err != nil {
		return err
	}
	b.respond(ctx, c, "", false)
	return nil
}

func (b *Bot) onPrice(ctx context.Context, c *tb.Callback) error {
	price, err := strconv.Atoi(strings.TrimSpace(c.Data))
	if err != nil {
		return fmt.Errorf("bot: price %q: %w", c.Data, errBadPayload)
	}
	if err := b.saveAdd(ctx, c.Sender, c.Message, price); err != nil {
		return err
	}
	b.respond(ctx, c, "", false)
	return nil
}

func (b *Bot) onView(ctx context.Context, c *tb.Callback) error {
	id, err := parseID(c.Data)
	if err != nil {
		return err
	}
	m, err := b.owned(ctx, c.Sender, id)
	if err != nil {
		return err
	}
	b.clearDraft(c.Sender.ID)
	if err := b.showMarket(ctx, c.Sender, c.Message, m); err != nil {
		return err
	}
	b.respond(ctx, c, "", false)
	return nil
}

func (b *Bot) onEdit(ctx context.Context, c *tb.Callback) error {
	id, err := parseID(c.Data)
	if err != nil {
		return err
	}
	if _, err := b.owned(ctx, c.Sender, id); err != nil {
		return err
	}
	b.setDraft(c.Sender.ID, draft{Input: inputEdit, TrackedID: id})
	b.show(ctx, c.Sender, c.Message, "Edit Market Target Price or enter manually", editPriceMarkup(id))
	b.respond(ctx, c, "", false)
	return nil
}

func (b *Bot) onSetPrice(ctx context.Context, c *tb.Callback) error {
	id, price, err := parseSetPrice(c.Data)
	if err != nil {
		return err
	}
	if err := b.saveEdit(ctx, c.Sender, c.Message, id, price); err != nil {
		return err
	}
	b.respond(ctx, c, "Market updated successfully!", false)
	return nil
}

func (b *Bot) onToggle(ctx context.Context, c *tb.Callback) error {
	id, err := parseID(c.Data)
	if err != nil {
		return err
	}
	m, err := b.owned(ctx, c.Sender, id)
	if err != nil {
		return err
	}
	updated, err := b.markets.ToggleMonitoring(ctx, id, !m.Active)
	if err != nil {
		return err
	}
	if updated == nil {
		b.respond(ctx, c, "Market not found.", true)
		return b.showList(ctx, c.Sender, c.Message)
	}

	state := "paused"
	if updated.Active {
		state = "resumed"
	}
	b.respond(ctx, c, "Monitoring "+state+".", false)
	return b.showMarket(ctx, c.Sender, c.Message, *updated)
}

func (b *Bot) onDelete(ctx context.Context, c *tb.Callback) error {
	id, err := parseID(c.Data)
	if err != nil {
		return err
	}
	if _, err := b.owned(ctx, c.Sender, id); err != nil {
		return err
	}
	if err := b.markets.Delete(ctx, id); err != nil {
		return err
	}
	b.respond(ctx, c, "Market deleted.", true)
	return b.showList(ctx, c.Sender, c.Message)
}

func (b *Bot) onList(ctx context.Context, c *tb.Callback) error {
	b.clearDraft(c.Sender.ID)
	if err := b.showList(ctx, c.Sender, c.Message); err != nil {
		return err
	}
	b.respond(ctx, c, "", false)
	return nil
}

func (b *Bot) onCancel(ctx context.Context, c *tb.Callback) error {
	b.clearDraft(c.Sender.ID)
	b.show(ctx, c.Sender, c.Message, "Cancelled.", nil)
	b.respond(ctx, c, "", false)
	return nil
}

// onEnableMonitoring handles the button attached to a fired alert.
func (b *Bot) onEnableMonitoring(ctx context.Context, c *tb.Callback) error {
	id, err := parseID(c.Data)
	if err != nil {
		return err
	}
	if _, err := b.owned(ctx, c.Sender, id); err != nil {
		b.respond(ctx, c, "Could not re-enable monitoring: the market no longer exists.", true)
		return nil
	}
	updated, err := b.markets.ToggleMonitoring(ctx, id, true)
	if err != nil {
		return err
	}
	if updated == nil {
		b.respond(ctx, c, "Could not re-enable monitoring: the market no longer exists.", true)
		return nil
	}

	b.respond(ctx, c, "Monitoring re-enabled!", false)
	if c.Message != nil {
		if _, err := b.client.EditReplyMarkup(c.Message, &tb.ReplyMarkup{}); err != nil {
			b.logger.WarnContext(ctx, "clear alert buttons failed", slog.String("error", err.Error()))
		}
	}
	b.reply(ctx, c.Sender, fmt.Sprintf("Monitoring for <b>%s</b> has been re-enabled.", html.EscapeString(updated.DisplayTitle())))
	return nil
}
