package telegram

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/PoluyanbIch/FairyQuizBot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const choicePrefix = "choice:"

func choiceKeyboard(options []string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, option := range options {
		btn := tgbotapi.NewInlineKeyboardButtonData(option, choicePrefix+strconv.Itoa(i))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// parseChoice reads the option index out of "choice:<i>".
func parseChoice(data string) (int, error) {
	raw, ok := strings.CutPrefix(data, choicePrefix)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected callback data %q", service.ErrMalformedChoice, data)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad option index %q", service.ErrMalformedChoice, raw)
	}
	return n, nil
}

func formatResult(title string, r service.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", html.EscapeString(title))
	fmt.Fprintf(&sb, "<i>%s's Fairy Form</i>\n\n", html.EscapeString(r.DisplayName))
	fmt.Fprintf(&sb, "<b>Fairy Type:</b> %s\n", html.EscapeString(r.FairyType))
	fmt.Fprintf(&sb, "<b>Your Fairy Name:</b> %s\n", html.EscapeString(r.FairyName))
	if r.Gender != "" {
		fmt.Fprintf(&sb, "<b>Gender Chosen:</b> <i>%s</i>\n", html.EscapeString(r.Gender))
	}
	if r.Realm != "" {
		fmt.Fprintf(&sb, "<b>Realm Chosen:</b> <i>%s</i>\n", html.EscapeString(r.Realm))
	}
	fmt.Fprintf(&sb, "\n<b>About Your Kind:</b>\n<i>%s</i>\n\n", html.EscapeString(r.Lore))
	sb.WriteString("(An image of your fairy form remains shrouded in mist... for now!)")
	return sb.String()
}

func formatCensus(counts []service.TypeCount, limit int) string {
	if len(counts) == 0 {
		return "🏆 <b>Fairy census</b>\n\nNo fairies have been revealed yet. Be the first with /startquiz!"
	}

	var sb strings.Builder
	sb.WriteString("🏆 <b>Fairy census</b>\n\n")
	for i, c := range counts {
		if i >= limit {
			break
		}
		var medal string
		switch i {
		case 0:
			medal = "🥇 "
		case 1:
			medal = "🥈 "
		case 2:
			medal = "🥉 "
		default:
			medal = fmt.Sprintf("%d. ", i+1)
		}
		fmt.Fprintf(&sb, "%s<b>%s</b>: %d\n", medal, html.EscapeString(c.FairyType), c.Count)
	}
	return sb.String()
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.UserName != "" {
		name = "@" + u.UserName
	}
	return name
}

func mention(u *tgbotapi.User) string {
	name := displayName(u)
	if name == "" {
		name = "friend"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(name))
}
