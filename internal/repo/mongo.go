package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BuzzLyutic/tasknest-api/internal/model"
)

const (
	usersCollection       = "users"
	tasksCollection       = "tasks"
	idempotencyCollection = "idempotency_keys"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type taskDoc struct {
	ID          string     `bson:"_id"`
	UserID      string     `bson:"user_id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description"`
	Status      string     `bson:"status"`
	Priority    string     `bson:"priority"`
	Deadline    *time.Time `bson:"deadline"`
	CreatedAt   time.Time  `bson:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at"`
}

type idempotencyDoc struct {
	UserID    string    `bson:"user_id"`
	Key       string    `bson:"key"`
	TaskID    string    `bson:"task_id"`
	CreatedAt time.Time `bson:"created_at"`
}

func toTaskDoc(t model.Task) taskDoc {
	return taskDoc{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Deadline:    t.Deadline,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (d taskDoc) toModel() model.Task {
	t := model.Task{
		ID:          d.ID,
		UserID:      d.UserID,
		Title:       d.Title,
		Description: d.Description,
		Status:      model.Status(d.Status),
		Priority:    model.Priority(d.Priority),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.Deadline != nil {
		dl := d.Deadline.UTC()
		t.Deadline = &dl
	}
	return t
}

// EnsureMongoIndexes creates the unique and TTL indexes the repositories rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database, idempotencyTTL time.Duration) error {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 24 * time.Hour
	}

	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}

	_, err = db.Collection(tasksCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("tasks index: %w", err)
	}

	_, err = db.Collection(idempotencyCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(idempotencyTTL.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("idempotency index: %w", err)
	}
	return nil
}

type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(usersCollection)}
}

func (r *MongoUserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	_, err := r.coll.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	})
	if err != nil {
		return model.User{}, mapMongoError(err)
	}
	return u, nil
}

func (r *MongoUserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.M) (model.User, error) {
	var d userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&d); err != nil {
		return model.User{}, mapMongoError(err)
	}
	return model.User{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
	}, nil
}

type MongoTaskRepo struct {
	tasks *mongo.Collection
	keys  *mongo.Collection
}

func NewMongoTaskRepo(db *mongo.Database) *MongoTaskRepo {
	return &MongoTaskRepo{
		tasks: db.Collection(tasksCollection),
		keys:  db.Collection(idempotencyCollection),
	}
}

func (r *MongoTaskRepo) Create(ctx context.Context, t model.Task) (model.Task, error) {
	t.UpdatedAt = t.CreatedAt
	if _, err := r.tasks.InsertOne(ctx, toTaskDoc(t)); err != nil {
		return model.Task{}, mapMongoError(err)
	}
	return t, nil
}

func (r *MongoTaskRepo) Get(ctx context.Context, userID, id string) (model.Task, error) {
	var d taskDoc
	if err := r.tasks.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&d); err != nil {
		return model.Task{}, mapMongoError(err)
	}
	return d.toModel(), nil
}

func (r *MongoTaskRepo) List(ctx context.Context, userID string, filter model.TaskFilter) ([]model.Task, error) {
	query := bson.M{"user_id": userID}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}
	if filter.Search != "" {
		pattern := regexp.QuoteMeta(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := r.tasks.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	tasks := make([]model.Task, 0)
	for cur.Next(ctx) {
		var d taskDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		tasks = append(tasks, d.toModel())
	}
	return tasks, cur.Err()
}

func (r *MongoTaskRepo) Update(ctx context.Context, userID, id string, p model.TaskPatch) (model.Task, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Status != nil {
		set["status"] = string(*p.Status)
	}
	if p.Priority != nil {
		set["priority"] = string(*p.Priority)
	}
	switch {
	case p.ClearDeadline:
		set["deadline"] = nil
	case p.Deadline != nil:
		set["deadline"] = *p.Deadline
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d taskDoc
	err := r.tasks.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": set},
		opts,
	).Decode(&d)
	if err != nil {
		return model.Task{}, mapMongoError(err)
	}
	return d.toModel(), nil
}

func (r *MongoTaskRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.tasks.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrorNotFound
	}
	_, err = r.keys.DeleteMany(ctx, bson.M{"user_id": userID, "task_id": id})
	return err
}

func (r *MongoTaskRepo) GetStats(ctx context.Context, userID string) (model.TaskStats, error) {
	var stats model.TaskStats
	cur, err := r.tasks.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return stats, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int    `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return stats, err
		}
		stats.Add(model.Status(row.Status), row.Count)
	}
	return stats, cur.Err()
}

func (r *MongoTaskRepo) SaveIdempotencyKey(ctx context.Context, userID, key, taskID string) error {
	_, err := r.keys.InsertOne(ctx, idempotencyDoc{
		UserID:    userID,
		Key:       key,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *MongoTaskRepo) GetIdempotencyKey(ctx context.Context, userID, key string) (string, error) {
	var d idempotencyDoc
	if err := r.keys.FindOne(ctx, bson.M{"user_id": userID, "key": key}).Decode(&d); err != nil {
		return "", mapMongoError(err)
	}
	return d.TaskID, nil
}

// PurgeIdempotencyKeys complements the TTL index, which only runs about once a minute.
func (r *MongoTaskRepo) PurgeIdempotencyKeys(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.keys.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func mapMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrorNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrorConflict
	}
	return err
}
