package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"access-service/internal/config"
	"access-service/internal/repository/model"
)

const topic = "access-control"

const (
	msgTypeRoleUpdate       = "role-update"
	msgTypePermissionUpdate = "permission-update"
	msgTypeUserAccessUpdate = "user-access-update"
)

type kafkaNotifier struct {
	logger *zap.SugaredLogger
	w      *kafka.Writer
}

func NewKafkaNotifier(ctx context.Context, wg *sync.WaitGroup, logger *zap.SugaredLogger, cfg config.KafkaConfig) Notifier {
	w := &kafka.Writer{
		Addr:        kafka.TCP(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		Topic:       topic,
		Async:       true,
		Balancer:    &kafka.LeastBytes{},
		ErrorLogger: zap.NewStdLog(zap.L()),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		logger.Info("shutting down kafka writer")
		if err := w.Close(); err != nil {
			logger.Errorw("failed to close kafka writer", "error", err)
		}
	}()

	return &kafkaNotifier{
		logger: logger,
		w:      w,
	}
}

type roleUpdateMessage struct {
	Role       *model.Role `json:"role"`
	ChangeType ChangeType  `json:"changeType"`
}

func (k *kafkaNotifier) RoleUpdate(ctx context.Context, role *model.Role, changeType ChangeType) error {
	msg := roleUpdateMessage{Role: role, ChangeType: changeType}
	if err := k.publishMessage(ctx, msgTypeRoleUpdate, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

type permissionUpdateMessage struct {
	Permission *model.Permission `json:"permission"`
	ChangeType ChangeType        `json:"changeType"`
}

func (k *kafkaNotifier) PermissionUpdate(ctx context.Context, permission *model.Permission, changeType ChangeType) error {
	msg := permissionUpdateMessage{Permission: permission, ChangeType: changeType}
	if err := k.publishMessage(ctx, msgTypePermissionUpdate, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (k *kafkaNotifier) UserAccessUpdate(ctx context.Context, change AccessChange) error {
	if err := k.publishMessage(ctx, msgTypeUserAccessUpdate, change); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (k *kafkaNotifier) publishMessage(ctx context.Context, msgType string, message interface{}) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := k.w.WriteMessages(ctx, kafka.Message{
		Value:   bytes,
		Headers: []kafka.Header{{Key: "X-Type", Value: []byte(msgType)}},
	}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
