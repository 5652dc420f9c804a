package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	telemetry  observability.Telemetry
	cfg        config.NotificationConfig
	async      bool
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, telemetry observability.Telemetry, cfg config.NotificationConfig) *NotificationService {
	if telemetry == nil {
		telemetry = observability.Nop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		telemetry:  telemetry,
		cfg:        cfg,
		async:      true,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventUserRegistered, n.handleUserRegistered)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
}

func (n *NotificationService) handleUserRegistered(ctx context.Context, event events.Event) error {
	n.telemetry.Log("UserRegistered", observability.CategoryNotify, observability.SeverityInfo, nil,
		zap.String("user_id", event.UserID))
	n.sendWebhook(event)
	return nil
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.telemetry.Log("TicketCreated", observability.CategoryNotify, observability.SeverityInfo, nil,
		zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhook(event)
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	n.telemetry.Log("TicketClosed", observability.CategoryNotify, observability.SeverityInfo, nil,
		zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhook(event)
	return nil
}

// sendWebhook posts the event to the configured URL. Delivery runs off the request path
// unless the service was built synchronous.
func (n *NotificationService) sendWebhook(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	if n.async {
		go n.deliver(event)
		return
	}
	n.deliver(event)
}

func (n *NotificationService) deliver(event events.Event) {
	code, _, errs := fiber.Post(n.cfg.WebhookURL).JSON(event).Timeout(n.cfg.WebhookTimeout()).Bytes()
	fields := []zap.Field{
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	}
	if len(errs) > 0 {
		n.telemetry.Log("Webhook delivery failed", observability.CategoryNotify, observability.SeverityError, errs[0], fields...)
		return
	}
	if code >= fiber.StatusBadRequest {
		n.telemetry.Log("Webhook rejected event", observability.CategoryNotify, observability.SeverityWarning,
			fmt.Errorf("webhook responded with status %d", code), fields...)
		return
	}
	n.telemetry.Log("Webhook delivered", observability.CategoryNotify, observability.SeverityInfo, nil, fields...)
}
