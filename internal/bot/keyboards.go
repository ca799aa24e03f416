package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/alanyoungcy/polyalert/internal/domain"
	"github.com/alanyoungcy/polyalert/internal/notify"
)

// Inline button identifiers. Payloads travel in the button Data.
const (
	pickUnique     = "pick"      // external market id
	priceUnique    = "price"     // target percent for the draft market
	viewUnique     = "view"      // tracked id
	editUnique     = "edit"      // tracked id
	setPriceUnique = "set_price" // "<tracked id>|<target>"
	toggleUnique   = "toggle"    // tracked id
	deleteUnique   = "del"       // tracked id
	listUnique     = "list"
	cancelUnique   = "cancel"
	enableUnique   = notify.EnableMonitoringUnique // tracked id
)

const (
	priceStep       = 5
	pricesPerRow    = 4
	maxQuestionRune = 60
)

const helpText = `<b>Polymarket price alerts</b>

Send me a Polymarket event link (https://polymarket.com/event/...) and pick the market and target price. I will message you once when the price reaches the target and pause the alert.

/add - track a market
/markets - list, edit, pause or delete your markets
/help - show this message`

func button(unique, text, data string) tb.InlineButton {
	return tb.InlineButton{Unique: unique, Text: text, Data: data}
}

func idData(id int64) string {
	return strconv.FormatInt(id, 10)
}

// priceRows lays out 5%..95% buttons. data renders each button payload.
func priceRows(unique string, data func(p int) string) [][]tb.InlineButton {
	var rows [][]tb.InlineButton
	var row []tb.InlineButton
	for p := priceStep; p < 100; p += priceStep {
		row = append(row, button(unique, fmt.Sprintf("%d%%", p), data(p)))
		if len(row) == pricesPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

func addPriceMarkup() *tb.ReplyMarkup {
	rows := priceRows(priceUnique, strconv.Itoa)
	rows = append(rows, []tb.InlineButton{button(cancelUnique, "Cancel", "")})
	return &tb.ReplyMarkup{InlineKeyboard: rows}
}

func editPriceMarkup(id int64) *tb.ReplyMarkup {
	rows := priceRows(setPriceUnique, func(p int) string {
		return fmt.Sprintf("%d|%d", id, p)
	})
	rows = append(rows, []tb.InlineButton{button(viewUnique, "Back", idData(id))})
	return &tb.ReplyMarkup{InlineKeyboard: rows}
}

func optionsMarkup(options []domain.MarketOption) *tb.ReplyMarkup {
	rows := make([][]tb.InlineButton, 0, len(options)+1)
	for _, o := range options {
		rows = append(rows, []tb.InlineButton{button(pickUnique, truncate(o.Question, maxQuestionRune), o.ID)})
	}
	rows = append(rows, []tb.InlineButton{button(cancelUnique, "Cancel", "")})
	return &tb.ReplyMarkup{InlineKeyboard: rows}
}

func existsMarkup(id int64) *tb.ReplyMarkup {
	return &tb.ReplyMarkup{InlineKeyboard: [][]tb.InlineButton{
		{button(viewUnique, "Open Market", idData(id))},
		{button(cancelUnique, "Close", "")},
	}}
}

func statusIcon(active bool) string {
	if active {
		return "✅"
	}
	return "⏸️"
}

// renderList builds the "your markets" screen.
func renderList(markets []domain.TrackedMarket) (string, *tb.ReplyMarkup) {
	if len(markets) == 0 {
		return "<b>Your Monitored Markets</b>\n\nNo markets found. Send a Polymarket event link to add one.", nil
	}
	rows := make([][]tb.InlineButton, 0, len(markets))
	for _, m := range markets {
		label := fmt.Sprintf("%s %s", statusIcon(m.Active), truncate(m.DisplayTitle(), maxQuestionRune))
		rows = append(rows, []tb.InlineButton{button(viewUnique, label, idData(m.ID))})
	}
	return "<b>Your Monitored Markets</b>", &tb.ReplyMarkup{InlineKeyboard: rows}
}

// renderMarket builds the detail screen of one tracked market. last is the
// last observed price in percent, negative when unknown.
func renderMarket(m domain.TrackedMarket, last float64) (string, *tb.ReplyMarkup) {
	status := "Paused"
	toggle := "Resume Monitoring"
	if m.Active {
		status = "Active"
		toggle = "Pause Monitoring"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n\n", html.EscapeString(m.DisplayTitle()))
	fmt.Fprintf(&sb, "Status: %s %s\n", statusIcon(m.Active), status)
	fmt.Fprintf(&sb, "Target Price: %s %d%%", m.Condition.Symbol(), m.TargetPrice)
	if last >= 0 {
		fmt.Fprintf(&sb, "\nLast Price: %.2f%%", last)
	}
	if !m.HasToken() {
		sb.WriteString("\n\n⚠️ This market has no price feed and is not monitored.")
	}

	var rows [][]tb.InlineButton
	if m.URL != "" {
		rows = append(rows, []tb.InlineButton{{Text: "Open on Polymarket", URL: m.URL}})
	}
	id := idData(m.ID)
	rows = append(rows,
		[]tb.InlineButton{button(editUnique, "Edit Target Price", id), button(toggleUnique, toggle, id)},
		[]tb.InlineButton{button(deleteUnique, "Delete Market", id)},
		[]tb.InlineButton{button(listUnique, "Back", "")},
	)
	return sb.String(), &tb.ReplyMarkup{InlineKeyboard: rows}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
