package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"emlakindex/server/config"
	"emlakindex/server/internal/models"
)

type Service struct {
	logger *logrus.Logger
	client *http.Client
	config *config.Config
}

func NewService(cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		logger: logger,
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendMessage sends a message to the configured Telegram chat
func (s *Service) SendMessage(message string) error {
	if !s.config.Telegram.IsEnabled {
		return nil
	}

	if s.config.Telegram.BotToken == "" {
		return errors.New("Telegram bot token is not configured")
	}

	if s.config.Telegram.ChatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.config.Telegram.BotToken)
	payload := map[string]interface{}{
		"chat_id":    s.config.Telegram.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %v", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyRunSummary sends a notification about a completed backfill run
func (s *Service) NotifyRunSummary(propertyType models.PropertyType, summary models.RunSummary) error {
	if !s.config.Telegram.IsEnabled {
		return nil
	}

	title := "<b>Backfill Run Completed</b>"
	if !summary.Success {
		title = "<b>⚠️ Backfill Run Failed</b>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", title)
	fmt.Fprintf(&sb, "🏷️ Session: %s\n", summary.SessionID)
	fmt.Fprintf(&sb, "🏠 Property type: %s\n", propertyType)

	if summary.Success {
		fmt.Fprintf(&sb, "📍 Locations backfilled: %d\n", summary.BackfilledLocations)
		fmt.Fprintf(&sb, "📈 Predictions: %d\n", summary.TotalPredictions)
		fmt.Fprintf(&sb, "🎯 Avg confidence: %.2f (%s)\n", summary.AvgConfidence, summary.ConfidenceBasis)
		if len(summary.ModelsUsed) > 0 {
			fmt.Fprintf(&sb, "🧮 Models: %s\n", strings.Join(summary.ModelsUsed, ", "))
		}
		if len(summary.SkippedLocations) > 0 {
			fmt.Fprintf(&sb, "⏭️ Skipped locations: %d\n", len(summary.SkippedLocations))
		}
	} else {
		fmt.Fprintf(&sb, "❌ Error: %s\n", summary.Error)
	}

	return s.SendMessage(sb.String())
}
