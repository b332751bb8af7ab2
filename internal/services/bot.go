package services

import (
	"time"

	tele "gopkg.in/telebot.v3"
)

// Bot wraps the telegram delivery channel used for sender receipts.
type Bot struct {
	token string
}

func NewBot(token string) (*Bot, error) {
	return &Bot{token}, nil
}

func (bot *Bot) SendMsg(chatID int64, text string) error {
	if bot.token == "" {
		return nil
	}

	pref := tele.Settings{
		Token:  bot.token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return err
	}

	_, err = b.Send(&tele.User{ID: chatID}, text, &tele.SendOptions{
		ParseMode: tele.ModeHTML,
	})
	return err
}
