package channels

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/iarabot/iara/pkg/bus"
	"github.com/iarabot/iara/pkg/config"
	"github.com/iarabot/iara/pkg/logger"
)

// TelegramChannel is the secondary chat surface, long-polling only.
// Non-text updates are skipped the same way non-text webhook events are.
type TelegramChannel struct {
	bot       *telego.Bot
	cfg       config.TelegramConfig
	processor Processor
	running   atomic.Bool
}

func NewTelegramChannel(cfg config.TelegramConfig, processor Processor) (*TelegramChannel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{
		bot:       bot,
		cfg:       cfg,
		processor: processor,
	}, nil
}

func (c *TelegramChannel) Name() string {
	return "telegram"
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.running.Store(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]interface{}{
		"username": c.bot.Username(),
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.InfoC("telegram", "Updates channel closed")
					c.running.Store(false)
					return
				}
				if update.Message != nil && update.Message.Text != "" {
					c.handleMessage(ctx, update.Message)
				}
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.running.Store(false)
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, m *telego.Message) {
	senderID := ""
	if m.From != nil {
		senderID = strconv.FormatInt(m.From.ID, 10)
	}

	msg := bus.InboundMessage{
		Channel:   "telegram",
		SenderID:  senderID,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		Content:   m.Text,
		MessageID: strconv.Itoa(m.MessageID),
	}

	out, send := c.processor.Process(ctx, msg)
	if !send {
		return
	}
	if err := c.Send(ctx, out); err != nil {
		logger.ErrorCF("telegram", "Delivery failed", map[string]interface{}{
			"chat_id": out.ChatID,
			"error":   err.Error(),
		})
	}
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.running.Load() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
