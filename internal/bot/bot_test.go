package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/service"
	"github.com/alanyoungcy/polyalert/internal/store/bunt"
)

type outgoing struct {
	to     tb.Recipient
	text   string
	markup *tb.ReplyMarkup
	edited bool
}

// fakeClient records everything the bot sends and dispatches updates to the
// registered handlers.
type fakeClient struct {
	mu         sync.Mutex
	handlers   map[string]interface{}
	out        []outgoing
	responses  []*tb.CallbackResponse
	markupEdit int
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]interface{}{}}
}

func markupOf(options []interface{}) *tb.ReplyMarkup {
	for _, o := range options {
		if m, ok := o.(*tb.ReplyMarkup); ok {
			return m
		}
	}
	return nil
}

func (f *fakeClient) Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, _ := what.(string)
	f.out = append(f.out, outgoing{to: to, text: text, markup: markupOf(options)})
	return &tb.Message{}, nil
}

func (f *fakeClient) Edit(_ tb.Editable, what interface{}, options ...interface{}) (*tb.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, _ := what.(string)
	f.out = append(f.out, outgoing{text: text, markup: markupOf(options), edited: true})
	return &tb.Message{}, nil
}

func (f *fakeClient) EditReplyMarkup(tb.Editable, *tb.ReplyMarkup) (*tb.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markupEdit++
	return &tb.Message{}, nil
}

func (f *fakeClient) Respond(_ *tb.Callback, resp ...*tb.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp...)
	return nil
}

func (f *fakeClient) Handle(endpoint interface{}, handler interface{}) {
	switch e := endpoint.(type) {
	case string:
		f.handlers[e] = handler
	case *tb.InlineButton:
		f.handlers["btn:"+e.Unique] = handler
	}
}

func (f *fakeClient) Start() {}
func (f *fakeClient) Stop()  {}

func (f *fakeClient) last() outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return outgoing{}
	}
	return f.out[len(f.out)-1]
}

func (f *fakeClient) lastResponse() *tb.CallbackResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return nil
	}
	return f.responses[len(f.responses)-1]
}

func (f *fakeClient) text(user *tb.User, text string) {
	h := f.handlers[tb.OnText]
	if strings.HasPrefix(text, "/") {
		h = f.handlers[strings.Fields(text)[0]]
	}
	h.(func(*tb.Message))(&tb.Message{Sender: user, Text: text})
}

func (f *fakeClient) press(user *tb.User, unique, data string) {
	h := f.handlers["btn:"+unique]
	h.(func(*tb.Callback))(&tb.Callback{Sender: user, Data: data, Message: &tb.Message{}})
}

type fakeGateway struct{}

func (fakeGateway) GetMarketInfo(_ context.Context, id string) (domain.MarketInfo, error) {
	switch id {
	case "m1":
		return domain.MarketInfo{MarketID: "m1", Title: "Will it rain?", Price: 0.40, TokenID: "tok-1"}, nil
	case "m2":
		return domain.MarketInfo{MarketID: "m2", Title: "Will it snow?", Price: 0.10, TokenID: "tok-2"}, nil
	}
	return domain.MarketInfo{}, domain.ErrMarketAPI
}

func (fakeGateway) GetEventMarkets(_ context.Context, slug string) ([]domain.MarketOption, error) {
	switch slug {
	case "single":
		return []domain.MarketOption{{ID: "m1", Question: "Will it rain?", Active: true}}, nil
	case "multi":
		return []domain.MarketOption{
			{ID: "m1", Question: "Will it rain?", Active: true},
			{ID: "m2", Question: "Will it snow?", Active: true},
		}, nil
	case "empty":
		return []domain.MarketOption{}, nil
	}
	return nil, domain.ErrMarketNotFound
}

func (fakeGateway) GetPricesBatch(context.Context, []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

type fixture struct {
	bot     *Bot
	client  *fakeClient
	markets *bunt.TrackedMarketStore
	users   *bunt.UserStore
}

func newFixture(t *testing.T, limiter domain.RateLimiter) *fixture {
	t.Helper()
	db, err := bunt.Memory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	markets := bunt.NewTrackedMarketStore(db)
	users := bunt.NewUserStore(db)
	client := newFakeClient()
	b := New(client,
		service.NewMarketService(markets, fakeGateway{}, nil, logger),
		service.NewUserService(users),
		limiter,
		Config{CommandLimit: 5, CommandWindow: time.Minute},
		logger,
	)
	b.Register()
	return &fixture{bot: b, client: client, markets: markets, users: users}
}

var (
	alice = &tb.User{ID: 1, Username: "alice", FirstName: "Alice"}
	bob   = &tb.User{ID: 2, Username: "bob", FirstName: "Bob"}
)

func TestRegisterWiresEveryEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	for _, key := range []string{"/start", "/help", "/add", "/markets", tb.OnText,
		"btn:pick", "btn:price", "btn:view", "btn:edit", "btn:set_price",
		"btn:toggle", "btn:del", "btn:list", "btn:cancel", "btn:enable_mon"} {
		assert.Contains(t, f.client.handlers, key)
	}
}

func TestStartRegistersUser(t *testing.T) {
	f := newFixture(t, nil)
	f.client.text(&tb.User{ID: 9, Username: "carol", FirstName: "Carol", LastName: "King"}, "/start")

	u, err := f.users.GetByID(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "Carol King", u.FullName)
	assert.Contains(t, f.client.last().text, "registered")
}

func TestAddSingleMarketWithButton(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.client.text(alice, "https://polymarket.com/event/single")
	prompt := f.client.last()
	assert.Contains(t, prompt.text, "Select target price")
	require.NotNil(t, prompt.markup)

	f.client.press(alice, priceUnique, "60")
	assert.Contains(t, f.client.last().text, "Market added!")

	list, err := f.markets.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "m1", list[0].MarketID)
	assert.Equal(t, "https://polymarket.com/event/single", list[0].URL)
	assert.Equal(t, domain.ConditionGE, list[0].Condition)
	assert.True(t, list[0].Active)
}

func TestAddMultiMarketWithManualPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.client.text(alice, "see https://polymarket.com/event/multi")
	picker := f.client.last()
	assert.Contains(t, picker.text, "Select a market")
	require.NotNil(t, picker.markup)
	assert.Len(t, picker.markup.InlineKeyboard, 3)

	f.client.press(alice, pickUnique, "m2")
	assert.Contains(t, f.client.last().text, "Select target price")

	f.client.text(alice, "abc")
	assert.Equal(t, "Please enter a valid integer number.", f.client.last().text)

	f.client.text(alice, "150")
	assert.Equal(t, "Target price must be between 0 and 100.", f.client.last().text)

	f.client.text(alice, "5")
	assert.Contains(t, f.client.last().text, "Market added!")

	list, err := f.markets.ListByUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "m2", list[0].MarketID)
	assert.Equal(t, 5, list[0].TargetPrice)
	assert.Equal(t, domain.ConditionLE, list[0].Condition)
}

func TestAddExistingMarketOffersIt(t *testing.T) {
	f := newFixture(t, nil)
	f.client.text(alice, "https://polymarket.com/event/single")
	f.client.press(alice, priceUnique, "60")

	f.client.text(alice, "https://polymarket.com/event/single")
	out := f.client.last()
	assert.Equal(t, "This market is already in your list.", out.text)
	require.NotNil(t, out.markup)
	assert.Equal(t, viewUnique, out.markup.InlineKeyboard[0][0].Unique)
}

func TestEventErrors(t *testing.T) {
	f := newFixture(t, nil)

	f.client.text(alice, "https://polymarket.com/event/empty")
	assert.Equal(t, "No open markets found for this event.", f.client.last().text)

	f.client.text(alice, "https://polymarket.com/event/unknown")
	assert.Equal(t, "Market not found.", f.client.last().text)

	f.client.text(alice, "hello")
	assert.Contains(t, f.client.last().text, "Send a Polymarket event link")
}

func TestPriceWithoutDraftExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.client.press(alice, priceUnique, "50")
	resp := f.client.lastResponse()
	require.NotNil(t, resp)
	assert.True(t, resp.ShowAlert)
	assert.Contains(t, resp.Text, "expired")
}

func seed(t *testing.T, f *fixture, user int64, active bool) domain.TrackedMarket {
	t.Helper()
	m, err := f.markets.Create(context.Background(), domain.TrackedMarket{
		UserID: user, MarketID: "m1", TokenID: "tok-1", URL: "https://polymarket.com/event/single",
		Title: "Will it rain?", TargetPrice: 60, Condition: domain.ConditionGE, Active: active,
	})
	require.NoError(t, err)
	return m
}

func TestOtherUsersMarketsAreHidden(t *testing.T) {
	f := newFixture(t, nil)
	m := seed(t, f, alice.ID, true)

	for _, unique := range []string{viewUnique, editUnique, toggleUnique, deleteUnique} {
		f.client.press(bob, unique, idData(m.ID))
		resp := f.client.lastResponse()
		require.NotNil(t, resp, unique)
		assert.Equal(t, "Market not found.", resp.Text, unique)
	}

	got, err := f.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}

func TestViewToggleDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := seed(t, f, alice.ID, true)

	f.client.text(alice, "/markets")
	assert.Contains(t, f.client.last().text, "Your Monitored Markets")

	f.client.press(alice, viewUnique, idData(m.ID))
	view := f.client.last()
	assert.Contains(t, view.text, "Will it rain?")
	assert.Contains(t, view.text, "Active")

	f.client.press(alice, toggleUnique, idData(m.ID))
	assert.Equal(t, "Monitoring paused.", f.client.lastResponse().Text)
	got, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	f.client.press(alice, deleteUnique, idData(m.ID))
	assert.Equal(t, "Market deleted.", f.client.lastResponse().Text)
	_, err = f.markets.GetByID(ctx, m.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEditTargetPrice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := seed(t, f, alice.ID, true)

	f.client.press(alice, editUnique, idData(m.ID))
	assert.Contains(t, f.client.last().text, "Edit Market Target Price")

	f.client.press(alice, setPriceUnique, idData(m.ID)+"|20")
	got, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.TargetPrice)
	assert.Equal(t, domain.ConditionLE, got.Condition)

	f.client.press(alice, editUnique, idData(m.ID))
	f.client.text(alice, "80")
	got, err = f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 80, got.TargetPrice)
	assert.Equal(t, domain.ConditionGE, got.Condition)
}

func TestEnableMonitoringFromAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	m := seed(t, f, alice.ID, false)

	f.client.press(alice, enableUnique, idData(m.ID))
	assert.Equal(t, "Monitoring re-enabled!", f.client.lastResponse().Text)
	assert.Equal(t, 1, f.client.markupEdit)

	got, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.NoError(t, f.markets.Delete(ctx, m.ID))
	f.client.press(alice, enableUnique, idData(m.ID))
	resp := f.client.lastResponse()
	assert.True(t, resp.ShowAlert)
	assert.Contains(t, resp.Text, "no longer exists")
}

func TestRateLimitedUser(t *testing.T) {
	f := newFixture(t, denyLimiter{})
	f.client.text(alice, "/markets")
	assert.Equal(t, "Too many requests, please slow down.", f.client.last().text)

	_, err := f.users.GetByID(context.Background(), alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidTargetPrice, "Target price must be between 0 and 100."},
		{&domain.MarketAlreadyExistsError{MarketID: "m", ExistingID: 3}, "You are already tracking this market."},
		{domain.ErrMarketNotFound, "Market not found."},
		{domain.ErrTokenIDNotFound, "Could not find the 'Yes' outcome token for this market."},
		{domain.ErrInvalidMarketURL, "The provided Polymarket URL is invalid. Please make sure it's a correct event URL."},
		{errors.Join(errors.New("x"), domain.ErrMarketAPI), "Polymarket API error, please try again in a moment."},
		{errors.New("boom"), "Something went wrong. Please try again later."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, userMessage(tt.err))
	}
	assert.True(t, isUnexpected(errors.New("boom")))
	assert.False(t, isUnexpected(domain.ErrMarketAPI))
}

func TestPriceKeyboard(t *testing.T) {
	markup := addPriceMarkup()
	var prices []string
	for _, row := range markup.InlineKeyboard {
		assert.LessOrEqual(t, len(row), pricesPerRow)
		for _, btn := range row {
			if btn.Unique == priceUnique {
				prices = append(prices, btn.Data)
			}
		}
	}
	require.Len(t, prices, 19)
	assert.Equal(t, "5", prices[0])
	assert.Equal(t, "95", prices[18])
}

func TestParseSetPrice(t *testing.T) {
	id, price, err := parseSetPrice("42|35")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 35, price)

	for _, bad := range []string{"", "42", "x|1", "1|y"} {
		_, _, err := parseSetPrice(bad)
		assert.ErrorIs(t, err, errBadPayload, bad)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
