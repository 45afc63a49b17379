// Package telegram is the chat front-end of the optimizer.
package telegram

import (
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/config"
)

type Bot struct {
	api *tgbotapi.BotAPI
	h   *Handlers
	log zerolog.Logger
}

func NewBot(token, webhookURL string, svc Optimizer, explain Explainer, defaults config.Run, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	// set webhook
	webhook, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	if _, err := api.Request(webhook); err != nil {
		return nil, err
	}
	log.Info().Str("url", webhookURL).Msg("telegram: webhook set")

	return &Bot{
		api: api,
		h:   NewHandlers(api, svc, explain, defaults, log),
		log: log.With().Str("component", "telegram").Logger(),
	}, nil
}

// WebhookHandler decodes an update and handles it in the background
// (registered at /telegram/webhook).
func (b *Bot) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	if m := update.Message; m != nil && m.Chat != nil {
		ev := b.log.Debug().Int64("chat_id", m.Chat.ID).Str("text", m.Text)
		if m.From != nil {
			ev = ev.Int64("from", m.From.ID)
		}
		ev.Msg("webhook: message")
		go b.h.HandleMessage(m)
	} else {
		b.log.Debug().Int("update_id", update.UpdateID).Msg("webhook: non-message update received")
	}
	w.WriteHeader(http.StatusOK)
}
