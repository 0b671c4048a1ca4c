package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// UserStore is the MongoDB credential store.
type UserStore struct {
	db *DB
}

// Create inserts a user. The unique index on email turns a second signup
// for the same address into a Conflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Posts = []string{}

	if _, err := s.db.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", "email", user.Email)
		}
		return fmt.Errorf("mongodb: inserting user %s: %w", user.Email, err)
	}

	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting user %s: %w", id, err)
	}
	normalize(&u)
	return &u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.db.users.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &apperror.AppError{
			Err:     apperror.ErrNotFound,
			Message: fmt.Sprintf("user with email %s not found", email),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting user by email: %w", err)
	}
	normalize(&u)
	return &u, nil
}

func normalize(u *model.User) {
	if u.Posts == nil {
		u.Posts = []string{}
	}
}
