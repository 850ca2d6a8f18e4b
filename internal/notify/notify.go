package notify

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

// Notifier delivers pipeline failure alerts to whoever is on call.
type Notifier interface {
	JobFailed(ctx context.Context, job *ports.Job, stage string, err error)
}

type telegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier alerts an admin chat. With an empty token it degrades
// to a log-only notifier so local runs need no bot setup.
func NewTelegramNotifier(token string, chatID int64) (Notifier, error) {
	if token == "" || chatID == 0 {
		return noopNotifier{}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init admin bot: %w", err)
	}
	return &telegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *telegramNotifier) JobFailed(ctx context.Context, job *ports.Job, stage string, err error) {
	text := fmt.Sprintf(
		"❗ dubflow job failed\n\nJob: %s\nSource: %s\nStage: %s\nError: %v",
		job.ID, job.SourceName, stage, err,
	)

	if _, sendErr := n.bot.Send(tgbotapi.NewMessage(n.chatID, text)); sendErr != nil {
		log.Printf("[notify] send fail: %v", sendErr)
	}
}

type noopNotifier struct{}

func (noopNotifier) JobFailed(ctx context.Context, job *ports.Job, stage string, err error) {
	log.Printf("[notify] job %s failed at %s: %v", job.ID, stage, err)
}
