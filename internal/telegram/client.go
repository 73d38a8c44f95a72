// Package telegram provides a client for sending notifications via Telegram Bot API.
// It formats collision reports into a short digest and handles delivery with
// retry logic for reliability.
//
// Messages use MarkdownV2, so every piece of data text is escaped before it is
// placed in a template.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/crashmap/internal/logger"
	"github.com/rewired-gh/crashmap/internal/models"
	"github.com/rewired-gh/crashmap/internal/report"
)

// digestHexagons is the number of dense cells listed in a digest.
const digestHexagons = 3

// sender is the part of tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logger.Debug("Authorized on Telegram account %s", bot.Self.UserName)

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// SendReport sends a digest of r
func (c *Client) SendReport(r *report.Report) error {
	return c.send(formatReport(r))
}

// SendError notifies the chat that a report could not be produced.
func (c *Client) SendError(err error) error {
	message := "⚠️ *Collision report failed*\n\n" + escapeMarkdownV2(err.Error())
	return c.send(message)
}

func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("Telegram send attempt %d/%d failed: %v", i+1, c.maxRetries, err)
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatReport renders the digest: headline counts, busiest minute, densest
// hexagons and the street ranking.
func formatReport(r *report.Report) string {
	var b strings.Builder

	b.WriteString("🚦 *NYC collision report*\n")
	fmt.Fprintf(&b, "📅 %s\n\n", escapeMarkdownV2(r.GeneratedAt.Format("2006-01-02 15:04")+" UTC"))

	fmt.Fprintf(&b, "🗺 %s collisions with at least %d injured\n",
		escapeMarkdownV2(humanize.Comma(int64(len(r.MapPoints)))), r.MinInjured)
	fmt.Fprintf(&b, "🕔 %s collisions %s\n",
		escapeMarkdownV2(humanize.Comma(int64(r.Hexagons.Collisions))), escapeMarkdownV2(r.Window))

	if minute, count := busiestMinute(r.Minutes); count > 0 {
		fmt.Fprintf(&b, "⏱ Busiest minute: %s \\(%s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%d:%02d", r.Hour, minute)), escapeMarkdownV2(humanize.Comma(int64(count))))
	}

	if bins := densest(r.Hexagons.Bins, digestHexagons); len(bins) > 0 {
		b.WriteString("\n*Densest areas*\n")
		for i, bin := range bins {
			loc := fmt.Sprintf("%.4f,%.4f", bin.Center.Lat, bin.Center.Lon)
			link := fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.5f&mlon=%.5f#map=17/%.5f/%.5f",
				bin.Center.Lat, bin.Center.Lon, bin.Center.Lat, bin.Center.Lon)
			fmt.Fprintf(&b, "%d\\. [%s](%s) %s\n", i+1, escapeMarkdownV2(loc), link,
				escapeMarkdownV2(fmt.Sprintf("(%d)", bin.Count)))
		}
	}

	fmt.Fprintf(&b, "\n*Dangerous streets for %s*\n", escapeMarkdownV2(strings.ToLower(r.Class.Label())))
	if len(r.Streets) == 0 {
		b.WriteString("No qualifying collisions\n")
	}
	for i, s := range r.Streets {
		fmt.Fprintf(&b, "%d\\. %s: *%d*\n", i+1, escapeMarkdownV2(s.Street), s.Count)
	}

	return b.String()
}

func busiestMinute(counts []models.MinuteCount) (minute, count int) {
	for _, c := range counts {
		if c.Count > count {
			minute, count = c.Minute, c.Count
		}
	}
	return minute, count
}

// densest returns up to n bins by descending count, first-seen order on ties.
func densest(bins []models.HexBin, n int) []models.HexBin {
	top := make([]models.HexBin, 0, n)
	for _, bin := range bins {
		pos := len(top)
		for pos > 0 && top[pos-1].Count < bin.Count {
			pos--
		}
		if pos >= n {
			continue
		}
		top = append(top, models.HexBin{})
		copy(top[pos+1:], top[pos:])
		top[pos] = bin
		if len(top) > n {
			top = top[:n]
		}
	}
	return top
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	// Characters that need escaping in MarkdownV2:
	// _ * [ ] ( ) ~ ` > # + - = | { } . ! \
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
