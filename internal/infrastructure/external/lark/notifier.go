package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/ringiflow/internal/application/port"
)

// Notifier implements port.Notifier by sending Lark text messages.
// Recipient ids are treated as Lark open ids.
type Notifier struct {
	client *Client
	logger *zap.Logger
}

// NewNotifier creates a new Lark notifier
func NewNotifier(client *Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		client: client,
		logger: logger,
	}
}

// NotifyStepAssigned tells an approver a step is waiting on them
func (n *Notifier) NotifyStepAssigned(ctx context.Context, notification port.StepAssignedNotification) error {
	text := fmt.Sprintf("Approval requested: %q (request #%d) is waiting on step %q (#%d).",
		notification.InstanceTitle,
		notification.InstanceDisplayNumber,
		notification.StepName,
		notification.StepDisplayNumber)
	return n.sendText(ctx, notification.AssigneeID, text)
}

// NotifyWorkflowCompleted tells the initiator their request finished
func (n *Notifier) NotifyWorkflowCompleted(ctx context.Context, notification port.WorkflowCompletedNotification) error {
	text := fmt.Sprintf("Your request %q (#%d) finished: %s.",
		notification.InstanceTitle,
		notification.InstanceDisplayNumber,
		notification.Outcome)
	return n.sendText(ctx, notification.InitiatorID, text)
}

// sendText sends a plain text message to a user
func (n *Notifier) sendText(ctx context.Context, openID, text string) error {
	if openID == "" {
		return fmt.Errorf("recipient id cannot be empty")
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkIm.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := n.client.client.Im.Message.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("receive_id", openID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("receive_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Info("Notification sent", zap.String("receive_id", openID))
	return nil
}

// Verify interface compliance
var _ port.Notifier = (*Notifier)(nil)
