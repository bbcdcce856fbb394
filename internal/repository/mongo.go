package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"access-service/internal/config"
	"access-service/internal/repository/model"
	"access-service/internal/repository/registrytypes"
)

const (
	databaseName = "access-service"

	roleCollectionName       = "roles"
	userCollectionName       = "users"
	permissionCollectionName = "permissions"
)

var (
	AlreadyGrantedError = errors.New("permission already granted to user")
	AlreadyRevokedError = errors.New("permission already revoked from user")
)

type mongoRepository struct {
	logger   *zap.SugaredLogger
	database *mongo.Database

	roleCollection       *mongo.Collection
	userCollection       *mongo.Collection
	permissionCollection *mongo.Collection
}

func NewMongoRepository(ctx context.Context, logger *zap.SugaredLogger, wg *sync.WaitGroup, cfg config.MongoDBConfig) (Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI).SetRegistry(createCodecRegistry()))
	if err != nil {
		return nil, err
	}

	database := client.Database(databaseName)
	repo := &mongoRepository{
		logger:   logger,
		database: database,

		roleCollection:       database.Collection(roleCollectionName),
		userCollection:       database.Collection(userCollectionName),
		permissionCollection: database.Collection(permissionCollectionName),
	}

	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Errorw("failed to disconnect from mongo", "error", err)
		}
	}()

	return repo, nil
}

func (m *mongoRepository) createIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.userCollection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (m *mongoRepository) GetPermissions(ctx context.Context) ([]*model.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := m.permissionCollection.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	var mongoResult []model.Permission
	err = cursor.All(ctx, &mongoResult)

	slice := make([]*model.Permission, len(mongoResult))
	for i := range mongoResult {
		slice[i] = &mongoResult[i]
	}

	return slice, err
}

func (m *mongoRepository) GetPermission(ctx context.Context, id string) (*model.Permission, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result model.Permission
	if err := m.permissionCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (m *mongoRepository) CreatePermission(ctx context.Context, permission *model.Permission) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.permissionCollection.InsertOne(ctx, permission)
	return err
}

func (m *mongoRepository) DeletePermission(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.permissionCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (m *mongoRepository) IsPermissionReferenced(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roleCount, err := m.roleCollection.CountDocuments(ctx, bson.M{"permissions": id})
	if err != nil {
		return false, err
	}
	if roleCount > 0 {
		return true, nil
	}

	userCount, err := m.userCollection.CountDocuments(ctx, bson.M{"$or": bson.A{
		bson.M{"customPermissions.granted": id},
		bson.M{"customPermissions.revoked": id},
	}})
	if err != nil {
		return false, err
	}

	return userCount > 0, nil
}

func (m *mongoRepository) GetAllRoles(ctx context.Context) ([]*model.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := m.roleCollection.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}

	var mongoResult []model.Role
	err = cursor.All(ctx, &mongoResult)

	slice := make([]*model.Role, len(mongoResult))
	for i := range mongoResult {
		slice[i] = &mongoResult[i]
	}

	return slice, err
}

func (m *mongoRepository) GetRole(ctx context.Context, roleId string) (*model.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result model.Role
	if err := m.roleCollection.FindOne(ctx, bson.M{"_id": roleId}).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (m *mongoRepository) DoesRoleExist(ctx context.Context, roleId string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := m.roleCollection.CountDocuments(ctx, bson.M{"_id": roleId})
	return count > 0, err
}

func (m *mongoRepository) CreateRole(ctx context.Context, role *model.Role) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.roleCollection.InsertOne(ctx, role)
	return err
}

func (m *mongoRepository) UpdateRole(ctx context.Context, newRole *model.Role) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := m.roleCollection.FindOneAndReplace(ctx, bson.M{"_id": newRole.Id}, newRole)
	return result.Err()
}

func (m *mongoRepository) DeleteRole(ctx context.Context, roleId string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.roleCollection.DeleteOne(ctx, bson.M{"_id": roleId})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (m *mongoRepository) CountUsersWithRole(ctx context.Context, roleId string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.userCollection.CountDocuments(ctx, bson.M{"roleId": roleId})
}

func (m *mongoRepository) GetUser(ctx context.Context, userId uuid.UUID) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result model.User
	if err := m.userCollection.FindOne(ctx, bson.M{"_id": userId}).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (m *mongoRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result model.User
	if err := m.userCollection.FindOne(ctx, bson.M{"username": username}).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (m *mongoRepository) CreateUser(ctx context.Context, user *model.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.userCollection.InsertOne(ctx, user)
	return err
}

func (m *mongoRepository) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.userCollection.CountDocuments(ctx, bson.D{})
}

func (m *mongoRepository) SetUserRole(ctx context.Context, userId uuid.UUID, roleId string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{"$set": bson.M{"roleId": roleId}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (m *mongoRepository) SetUserActive(ctx context.Context, userId uuid.UUID, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{"$set": bson.M{"isActive": active}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// GrantPermission adds to granted and clears the complementary revoked entry
// in one update so the two sets can never overlap in a committed document.
func (m *mongoRepository) GrantPermission(ctx context.Context, userId uuid.UUID, permissionId string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{
		"$addToSet": bson.M{"customPermissions.granted": permissionId},
		"$pull":     bson.M{"customPermissions.revoked": permissionId},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	if result.ModifiedCount == 0 {
		return AlreadyGrantedError
	}

	return nil
}

func (m *mongoRepository) RevokePermission(ctx context.Context, userId uuid.UUID, permissionId string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{
		"$addToSet": bson.M{"customPermissions.revoked": permissionId},
		"$pull":     bson.M{"customPermissions.granted": permissionId},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	if result.ModifiedCount == 0 {
		return AlreadyRevokedError
	}

	return nil
}

// IncrementLoginAttempts is a single pipeline update: the counter increments
// server-side and the lock decision is taken against that incremented value,
// so two concurrent failures around the threshold cannot both read a stale
// counter and leave the account unlocked.
func (m *mongoRepository) IncrementLoginAttempts(ctx context.Context, userId uuid.UUID, maxAttempts int, lockUntil time.Time) (model.SecurityState, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.A{
		bson.M{"$set": bson.M{"security.loginAttempts": bson.M{
			"$add": bson.A{bson.M{"$ifNull": bson.A{"$security.loginAttempts", 0}}, 1},
		}}},
		// Runs after the first stage, so this reads the incremented counter.
		bson.M{"$set": bson.M{"security.lockUntil": bson.M{
			"$cond": bson.A{
				bson.M{"$gte": bson.A{"$security.loginAttempts", maxAttempts}},
				lockUntil,
				bson.M{"$ifNull": bson.A{"$security.lockUntil", "$$REMOVE"}},
			},
		}}},
	}

	var updated model.User
	err := m.userCollection.FindOneAndUpdate(ctx, bson.M{"_id": userId}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return model.SecurityState{}, err
	}

	return updated.Security, nil
}

func (m *mongoRepository) RestartLoginWindow(ctx context.Context, userId uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{
		"$set":   bson.M{"security.loginAttempts": 1},
		"$unset": bson.M{"security.lockUntil": ""},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (m *mongoRepository) ResetLoginAttempts(ctx context.Context, userId uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := m.userCollection.UpdateOne(ctx, bson.M{"_id": userId}, bson.M{
		"$set":   bson.M{"security.loginAttempts": 0},
		"$unset": bson.M{"security.lockUntil": ""},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func createCodecRegistry() *bsoncodec.Registry {
	return bson.NewRegistryBuilder().
		RegisterTypeEncoder(registrytypes.UUIDType, bsoncodec.ValueEncoderFunc(registrytypes.UuidEncodeValue)).
		RegisterTypeDecoder(registrytypes.UUIDType, bsoncodec.ValueDecoderFunc(registrytypes.UuidDecodeValue)).
		Build()
}
