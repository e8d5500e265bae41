package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// ConfirmationHandler turns order.placed events into confirmation emails.
type ConfirmationHandler struct {
	emailServiceURL string
	recipientDomain string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewConfirmationHandler(emailServiceURL, recipientDomain string, client *http.Client, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		recipientDomain: recipientDomain,
		httpClient:      client,
		logger:          logger,
	}
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Handle sends the confirmation email for one committed order. Decoding is
// left to messaging.JSONHandler.
func (h *ConfirmationHandler) Handle(ctx context.Context, event domain.OrderPlacedEvent) error {
	h.logger.Info("processing order placed event", "order_id", event.OrderID, "user_id", event.UserID)

	if err := h.sendEmail(ctx, confirmationEmail(event, h.recipientDomain)); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order confirmation sent", "order_id", event.OrderID)
	return nil
}

func confirmationEmail(event domain.OrderPlacedEvent, recipientDomain string) emailRequest {
	units := 0
	for _, item := range event.Items {
		units += item.Quantity
	}

	return emailRequest{
		To:      event.UserID + "@" + recipientDomain,
		Subject: "Order Confirmation: " + event.OrderID,
		Body: fmt.Sprintf("Your order %s for %d item(s) totalling $%s has been placed.",
			event.OrderID, units, event.Total.StringFixed(2)),
	}
}

func (h *ConfirmationHandler) sendEmail(ctx context.Context, email emailRequest) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
