// Package notify publishes budget alerts to the external notification
// pipeline. Publishing is fire-and-forget from the ledger's point of view.
package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/models"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

type PubSubNotifier struct {
	logger *logrus.Logger
}

func NewPubSubNotifier() *PubSubNotifier {
	return &PubSubNotifier{logger: config.GetLogger()}
}

func (n *PubSubNotifier) SendBudgetAlert(ctx context.Context, b *models.Budget, a *models.BudgetAlert) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	triggeredAt := time.Now()
	if a.TriggeredAt != nil {
		triggeredAt = *a.TriggeredAt
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	msg := config.BudgetAlertMessage{
		WorkspaceId:   b.WorkspaceId,
		BudgetId:      b.ID,
		BudgetName:    b.Name,
		AlertId:       a.ID,
		AlertType:     string(a.Type),
		Threshold:     a.Threshold.String(),
		Utilization:   b.Utilization().Round(2).String(),
		NotifyUsers:   a.NotifyUsers,
		TriggeredAt:   triggeredAt,
		CorrelationId: correlationId,
	}
	msgId, err := config.PublishBudgetAlert(ctx, msg)
	if err != nil {
		return err
	}
	n.logger.WithFields(logrus.Fields{
		"module":    "notify",
		"budget_id": b.ID,
		"alert_id":  a.ID,
		"msg_id":    msgId,
	}).Info("published budget alert")
	return nil
}
