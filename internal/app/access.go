package app

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"access-service/internal/config"
	"access-service/internal/notifier"
	"access-service/internal/rbac"
	"access-service/internal/repository"
	"access-service/internal/repository/model"
	"access-service/internal/service"
	"access-service/internal/utils"
)

func Run(cfg config.Config, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}

	delayedCtx, repoCancel := context.WithCancel(context.Background())
	delayedWg := &sync.WaitGroup{}

	repo, err := repository.NewMongoRepository(delayedCtx, logger, delayedWg, cfg.MongoDB)
	if err != nil {
		logger.Fatalw("failed to create repository", "error", err)
	}

	if err := seedSystemData(ctx, repo); err != nil {
		logger.Fatalw("failed to seed system roles", "error", err)
	}

	notif := notifier.NewKafkaNotifier(delayedCtx, delayedWg, logger, cfg.Kafka)

	service.RunServices(ctx, logger, wg, cfg, repo, notif)

	wg.Wait()
	logger.Info("shutting down")

	logger.Info("shutting down delayed services")
	repoCancel()
	delayedWg.Wait()
}

// seedSystemData makes sure the system roles and the core platform
// permissions exist. Existing documents are left untouched.
func seedSystemData(ctx context.Context, repo repository.Repository) error {
	for _, id := range rbac.CoreScopes() {
		err := repo.CreatePermission(ctx, &model.Permission{Id: id, IsSystem: true})
		if err != nil && !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}

	roles := []*model.Role{
		{
			Id:          model.SuperuserRoleId,
			DisplayName: utils.PointerOf("Administrator"),
			Permissions: []string{},
			IsSystem:    true,
			IsActive:    true,
			Superuser:   true,
		},
		{
			Id:          model.DefaultRoleId,
			DisplayName: utils.PointerOf("Member"),
			Permissions: []string{},
			IsSystem:    true,
			IsActive:    true,
		},
	}

	for _, role := range roles {
		exists, err := repo.DoesRoleExist(ctx, role.Id)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := repo.CreateRole(ctx, role); err != nil && !mongo.IsDuplicateKeyError(err) {
			return err
		}
	}

	return nil
}
