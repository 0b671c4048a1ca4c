package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
)

var _ repository.PostRepository = (*PostStore)(nil)

// newestFirst orders by creation time; xid IDs break ties in insert order.
var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

// PostStore is the MongoDB post store.
type PostStore struct {
	db *DB
}

// contains builds a case-insensitive substring match. The value is quoted
// so it can never act as a pattern.
func contains(v string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(v), Options: "i"}
}

func fixTags(p *model.Post) {
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// Create inserts the post and adds its ID to the author's post set in one
// transaction.
func (s *PostStore) Create(ctx context.Context, post *model.Post) error {
	now := time.Now().UTC()
	post.ID = xid.New().String()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.State == "" {
		post.State = model.StateDraft
	}
	fixTags(post)

	return s.db.withTx(ctx, func(sc mongo.SessionContext) error {
		res, err := s.db.users.UpdateOne(sc,
			bson.M{"_id": post.AuthorID},
			bson.M{
				"$addToSet": bson.M{"posts": post.ID},
				"$set":      bson.M{"updatedAt": now},
			},
		)
		if err != nil {
			return fmt.Errorf("mongodb: linking post to user %s: %w", post.AuthorID, err)
		}
		if res.MatchedCount == 0 {
			return apperror.NotFound("user", post.AuthorID)
		}

		if _, err := s.db.posts.InsertOne(sc, post); err != nil {
			return fmt.Errorf("mongodb: inserting post: %w", err)
		}
		return nil
	})
}

func (s *PostStore) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	err := s.db.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("post", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting post %s: %w", id, err)
	}
	fixTags(&p)
	return &p, nil
}

// IncrementReadCount is a single $inc guarded by the published predicate,
// so concurrent readers never lose an increment.
func (s *PostStore) IncrementReadCount(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	err := s.db.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "state": model.StatePublished},
		bson.M{"$inc": bson.M{"readCount": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("post", id)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: incrementing read count of post %s: %w", id, err)
	}
	fixTags(&p)
	return &p, nil
}

func (s *PostStore) ListPublished(ctx context.Context, filter repository.PostFilter) ([]model.Post, error) {
	query := bson.M{"state": model.StatePublished}
	if filter.Author != "" {
		query["author"] = contains(filter.Author)
	}
	if filter.Title != "" {
		query["title"] = contains(filter.Title)
	}
	if filter.Tag != "" {
		// A regex against an array field matches if any element matches.
		query["tags"] = contains(filter.Tag)
	}
	return s.find(ctx, query)
}

func (s *PostStore) ListByAuthor(ctx context.Context, authorID string) ([]model.Post, error) {
	return s.find(ctx, bson.M{"authorId": authorID})
}

func (s *PostStore) find(ctx context.Context, query bson.M) ([]model.Post, error) {
	cur, err := s.db.posts.Find(ctx, query, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing posts: %w", err)
	}
	defer cur.Close(ctx)

	posts := []model.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("mongodb: decoding posts: %w", err)
	}
	for i := range posts {
		fixTags(&posts[i])
	}
	return posts, nil
}

// Update matches on both id and owner, so the ownership check and the
// write are one atomic operation. When nothing matches, a second lookup
// tells a missing post apart from someone else's.
func (s *PostStore) Update(ctx context.Context, id, callerID string, patch repository.PostPatch) (*model.Post, error) {
	set := setFields(patch)
	set["updatedAt"] = time.Now().UTC()

	var p model.Post
	err := s.db.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "authorId": callerID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missOrForbidden(ctx, id, "You can only update a post you created!")
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: updating post %s: %w", id, err)
	}
	fixTags(&p)
	return &p, nil
}

func (s *PostStore) missOrForbidden(ctx context.Context, id, msg string) error {
	n, err := s.db.posts.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: checking post %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("post", id)
	}
	return apperror.Forbidden(msg)
}

func setFields(patch repository.PostPatch) bson.M {
	set := bson.M{}
	if patch.State != nil {
		set["state"] = *patch.State
	}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Body != nil {
		set["body"] = *patch.Body
	}
	if patch.ReadTime != nil {
		set["readTime"] = *patch.ReadTime
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = []string{}
		}
		set["tags"] = tags
	}
	return set
}

// Delete removes the post and pulls it from the owner's post set in one
// transaction, after the ownership check.
func (s *PostStore) Delete(ctx context.Context, id, callerID string) (*model.Post, error) {
	var post model.Post

	err := s.db.withTx(ctx, func(sc mongo.SessionContext) error {
		err := s.db.posts.FindOne(sc, bson.M{"_id": id}).Decode(&post)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperror.NotFound("post", id)
		}
		if err != nil {
			return fmt.Errorf("mongodb: getting post %s: %w", id, err)
		}

		if !post.IsOwnedBy(callerID) {
			return apperror.Forbidden("You can only delete a post you created!")
		}

		if _, err := s.db.posts.DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return fmt.Errorf("mongodb: deleting post %s: %w", id, err)
		}

		if _, err := s.db.users.UpdateOne(sc,
			bson.M{"_id": post.AuthorID},
			bson.M{"$pull": bson.M{"posts": id}},
		); err != nil {
			return fmt.Errorf("mongodb: unlinking post %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixTags(&post)
	return &post, nil
}
