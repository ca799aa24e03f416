package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/service"
)

func (b *Bot) onStart(ctx context.Context, m *tb.Message) error {
	u := m.Sender
	if _, err := b.users.Register(ctx, u.ID, u.Username, u.FirstName, u.LastName); err != nil {
		return err
	}
	b.reply(ctx, u, "Hello! You have been registered in the database.\n\n"+helpText)
	return nil
}

func (b *Bot) onHelp(ctx context.Context, m *tb.Message) error {
	b.reply(ctx, m.Sender, helpText)
	return nil
}

func (b *Bot) onAdd(ctx context.Context, m *tb.Message) error {
	b.clearDraft(m.Sender.ID)
	b.reply(ctx, m.Sender, "Send me the Polymarket event link, e.g. https://polymarket.com/event/...")
	return nil
}

func (b *Bot) onMarkets(ctx context.Context, m *tb.Message) error {
	return b.showList(ctx, m.Sender, nil)
}

// onText handles free text: a pending manual price, or an event link.
func (b *Bot) onText(ctx context.Context, m *tb.Message) error {
	text := strings.TrimSpace(m.Text)
	if service.LooksLikeEventURL(text) {
		return b.startEvent(ctx, m.Sender, text)
	}

	d, ok := b.draft(m.Sender.ID)
	if !ok || d.Input == inputNone {
		b.reply(ctx, m.Sender, "Send a Polymarket event link to track a market, or /help.")
		return nil
	}
	price, err := strconv.Atoi(text)
	if err != nil {
		b.reply(ctx, m.Sender, "Please enter a valid integer number.")
		return nil
	}
	if d.Input == inputEdit {
		return b.saveEdit(ctx, m.Sender, nil, d.TrackedID, price)
	}
	return b.saveAdd(ctx, m.Sender, nil, price)
}

// startEvent resolves an event link into its open markets and starts the
// add flow.
func (b *Bot) startEvent(ctx context.Context, u *tb.User, text string) error {
	slug, canonical, err := service.ParseEventURL(text)
	if err != nil {
		return err
	}
	options, err := b.markets.EventMarkets(ctx, slug)
	if err != nil {
		return err
	}

	switch len(options) {
	case 0:
		b.reply(ctx, u, "No open markets found for this event.")
		return nil
	case 1:
		return b.offerMarket(ctx, u, nil, canonical, options[0].ID)
	default:
		b.setDraft(u.ID, draft{URL: canonical})
		b.reply(ctx, u, "Select a market to track:", optionsMarkup(options))
		return nil
	}
}

// offerMarket shows the price picker for marketID, or the existing
// subscription when the user already tracks it.
func (b *Bot) offerMarket(ctx context.Context, u *tb.User, msg *tb.Message, url, marketID string) error {
	existing, err := b.markets.CheckExists(ctx, u.ID, marketID)
	if err != nil {
		return err
	}
	if existing != nil {
		b.clearDraft(u.ID)
		b.show(ctx, u, msg, "This market is already in your list.", existsMarkup(existing.ID))
		return nil
	}

	b.setDraft(u.ID, draft{URL: url, MarketID: marketID, Input: inputAdd})
	b.show(ctx, u, msg, "Select target price percentage for notification or enter manually:", addPriceMarkup())
	return nil
}

func (b *Bot) saveAdd(ctx context.Context, u *tb.User, msg *tb.Message, price int) error {
	d, ok := b.draft(u.ID)
	if !ok || d.MarketID == "" {
		return errSelectionExpired
	}

	created, err := b.markets.Add(ctx, service.AddMarketRequest{
		UserID:      u.ID,
		MarketID:    d.MarketID,
		URL:         d.URL,
		TargetPrice: price,
	})
	var exists *domain.MarketAlreadyExistsError
	switch {
	case errors.As(err, &exists):
		b.clearDraft(u.ID)
		b.show(ctx, u, msg, "This market is already in your list.", existsMarkup(exists.ExistingID))
		return nil
	case errors.Is(err, domain.ErrInvalidTargetPrice):
		return err
	case err != nil:
		b.clearDraft(u.ID)
		return err
	}

	b.clearDraft(u.ID)
	b.show(ctx, u, msg, fmt.Sprintf("Market added! Monitoring for price hits at %d%% (%s %d%%).",
		created.TargetPrice, created.Condition.Symbol(), created.TargetPrice), nil)
	return nil
}

func (b *Bot) saveEdit(ctx context.Context, u *tb.User, msg *tb.Message, id int64, price int) error {
	if _, err := b.owned(ctx, u, id); err != nil {
		b.clearDraft(u.ID)
		return err
	}
	updated, err := b.markets.UpdateTargetPrice(ctx, id, price)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTargetPrice) {
			b.clearDraft(u.ID)
		}
		return err
	}
	b.clearDraft(u.ID)
	if msg == nil {
		b.reply(ctx, u, "Market updated successfully!")
	}
	return b.showMarket(ctx, u, msg, updated)
}

// owned loads a tracked market and checks that u owns it. Other users'
// markets are reported as missing.
func (b *Bot) owned(ctx context.Context, u *tb.User, id int64) (domain.TrackedMarket, error) {
	m, err := b.markets.Get(ctx, id)
	if err != nil {
		return domain.TrackedMarket{}, err
	}
	if m.UserID != u.ID {
		return domain.TrackedMarket{}, fmt.Errorf("bot: market %d not owned by %d: %w", id, u.ID, domain.ErrMarketNotFound)
	}
	return m, nil
}

func (b *Bot) showList(ctx context.Context, u *tb.User, msg *tb.Message) error {
	markets, err := b.markets.List(ctx, u.ID)
	if err != nil {
		return err
	}
	text, markup := renderList(markets)
	b.show(ctx, u, msg, text, markup)
	return nil
}

func (b *Bot) showMarket(ctx context.Context, u *tb.User, msg *tb.Message, m domain.TrackedMarket) error {
	last := -1.0
	if p, ok := b.markets.LastPrices(ctx, []domain.TrackedMarket{m})[m.ID]; ok {
		last = p
	}
	text, markup := renderMarket(m, last)
	b.show(ctx, u, msg, text, markup)
	return nil
}
