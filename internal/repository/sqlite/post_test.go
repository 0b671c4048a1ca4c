package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
)

// createTestPost creates a post owned by author and fails the test if it
// errors.
func createTestPost(t *testing.T, p *PostStore, author *model.User, title string, state model.PostState, tags ...string) *model.Post {
	t.Helper()
	post := &model.Post{
		Title:       title,
		Description: "about " + title,
		Body:        "some body text",
		Tags:        tags,
		Author:      author.FullName(),
		AuthorID:    author.ID,
		State:       state,
		ReadTime:    "1 mins",
	}
	if err := p.Create(context.Background(), post); err != nil {
		t.Fatalf("failed to create test post: %v", err)
	}
	return post
}

func ids(posts []model.Post) map[string]bool {
	m := make(map[string]bool, len(posts))
	for _, p := range posts {
		m[p.ID] = true
	}
	return m
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestPostCreate(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")

	post := &model.Post{
		Title:       "Hello",
		Description: "first post",
		Body:        "hello world",
		Tags:        []string{"go", "intro"},
		Author:      author.FullName(),
		AuthorID:    author.ID,
		ReadTime:    "1 mins",
	}
	if err := db.Posts().Create(context.Background(), post); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if post.ID == "" {
		t.Fatal("Create() did not set post.ID")
	}
	if post.State != model.StateDraft {
		t.Errorf("State = %q, want draft by default", post.State)
	}

	found, err := db.Posts().GetByID(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != "Hello" || found.AuthorID != author.ID {
		t.Errorf("persisted post = %+v", found)
	}
	if len(found.Tags) != 2 || found.Tags[0] != "go" || found.Tags[1] != "intro" {
		t.Errorf("Tags = %v, want [go intro]", found.Tags)
	}
	if found.ReadCount != 0 {
		t.Errorf("ReadCount = %d, want 0", found.ReadCount)
	}
}

func TestPostCreate_UnknownAuthor(t *testing.T) {
	db := newTestDB(t)

	post := &model.Post{Title: "t", Description: "d", Body: "b", Author: "Ghost", AuthorID: "no-such-user"}
	err := db.Posts().Create(context.Background(), post)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Create() error = %v, want ErrNotFound", err)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("counting posts: %v", err)
	}
	if count != 0 {
		t.Errorf("posts count = %d, want 0 after failed create", count)
	}
}

// =========================================================================
// READ COUNT TESTS
// =========================================================================

func TestIncrementReadCount(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	post := createTestPost(t, db.Posts(), author, "published", model.StatePublished)

	got, err := db.Posts().IncrementReadCount(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("IncrementReadCount() error = %v", err)
	}
	if got.ReadCount != 1 {
		t.Errorf("ReadCount = %d, want 1", got.ReadCount)
	}

	got, err = db.Posts().IncrementReadCount(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("IncrementReadCount() second call error = %v", err)
	}
	if got.ReadCount != 2 {
		t.Errorf("ReadCount = %d, want 2", got.ReadCount)
	}
}

func TestIncrementReadCount_Draft(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	post := createTestPost(t, db.Posts(), author, "draft", model.StateDraft)

	_, err := db.Posts().IncrementReadCount(context.Background(), post.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("IncrementReadCount() on draft error = %v, want ErrNotFound", err)
	}

	found, _ := db.Posts().GetByID(context.Background(), post.ID)
	if found.ReadCount != 0 {
		t.Errorf("draft ReadCount = %d, want 0", found.ReadCount)
	}
}

func TestIncrementReadCount_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Posts().IncrementReadCount(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("IncrementReadCount() error = %v, want ErrNotFound", err)
	}
}

// TestIncrementReadCount_Concurrent checks that N parallel reads raise the
// counter by exactly N.
func TestIncrementReadCount_Concurrent(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	post := createTestPost(t, db.Posts(), author, "popular", model.StatePublished)

	const readers = 50
	var wg sync.WaitGroup
	errs := make(chan error, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.Posts().IncrementReadCount(context.Background(), post.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent IncrementReadCount() error = %v", err)
	}

	found, err := db.Posts().GetByID(context.Background(), post.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.ReadCount != readers {
		t.Errorf("ReadCount = %d, want %d", found.ReadCount, readers)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestListPublished_ExcludesDrafts(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	pub := createTestPost(t, db.Posts(), author, "visible", model.StatePublished)
	draft := createTestPost(t, db.Posts(), author, "hidden", model.StateDraft)

	posts, err := db.Posts().ListPublished(context.Background(), repository.PostFilter{})
	if err != nil {
		t.Fatalf("ListPublished() error = %v", err)
	}

	got := ids(posts)
	if !got[pub.ID] {
		t.Error("ListPublished() is missing the published post")
	}
	if got[draft.ID] {
		t.Error("ListPublished() returned a draft")
	}
}

func TestListPublished_Filters(t *testing.T) {
	db := newTestDB(t)
	ada := &model.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PasswordHash: "x"}
	if err := db.Users().Create(context.Background(), ada); err != nil {
		t.Fatalf("create ada: %v", err)
	}
	alan := &model.User{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", PasswordHash: "x"}
	if err := db.Users().Create(context.Background(), alan); err != nil {
		t.Fatalf("create alan: %v", err)
	}

	p := db.Posts()
	fooGo := createTestPost(t, p, ada, "Foo and Go", model.StatePublished, "golang", "backend")
	barRust := createTestPost(t, p, alan, "Bar", model.StatePublished, "rust")
	fooDraft := createTestPost(t, p, alan, "foo draft", model.StateDraft, "golang")
	onFood := createTestPost(t, p, alan, "On FOOD", model.StatePublished)
	elan := createTestPost(t, p, ada, "Élan Über Straße", model.StatePublished, "Äpfel")

	tests := []struct {
		name   string
		filter repository.PostFilter
		want   []string
	}{
		{"no filter matches all published", repository.PostFilter{}, []string{fooGo.ID, barRust.ID, onFood.ID, elan.ID}},
		{"title substring ignores case", repository.PostFilter{Title: "foo"}, []string{fooGo.ID, onFood.ID}},
		{"title ignores case beyond ASCII", repository.PostFilter{Title: "élan"}, []string{elan.ID}},
		{"title matches upper-cased non-ASCII", repository.PostFilter{Title: "ÜBER"}, []string{elan.ID}},
		{"tag ignores case beyond ASCII", repository.PostFilter{Tag: "äpfel"}, []string{elan.ID}},
		{"author substring", repository.PostFilter{Author: "TURING"}, []string{barRust.ID, onFood.ID}},
		{"tag substring on any element", repository.PostFilter{Tag: "lang"}, []string{fooGo.ID}},
		{"filters are ANDed", repository.PostFilter{Title: "foo", Author: "alan"}, []string{onFood.ID}},
		{"no match", repository.PostFilter{Tag: "haskell"}, []string{}},
		{"pattern characters are literal", repository.PostFilter{Title: "F.o"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			posts, err := p.ListPublished(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("ListPublished() error = %v", err)
			}
			got := ids(posts)
			if len(got) != len(tt.want) {
				t.Errorf("ListPublished() returned %d posts, want %d", len(got), len(tt.want))
			}
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("ListPublished() missing post %s", id)
				}
			}
			if got[fooDraft.ID] {
				t.Error("ListPublished() returned a draft")
			}
		})
	}
}

func TestListByAuthor_IncludesDrafts(t *testing.T) {
	db := newTestDB(t)
	a := createTestUser(t, db.Users(), "a@example.com")
	b := createTestUser(t, db.Users(), "b@example.com")

	mine1 := createTestPost(t, db.Posts(), a, "mine draft", model.StateDraft)
	mine2 := createTestPost(t, db.Posts(), a, "mine published", model.StatePublished)
	theirs := createTestPost(t, db.Posts(), b, "theirs", model.StatePublished)

	posts, err := db.Posts().ListByAuthor(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("ListByAuthor() error = %v", err)
	}

	got := ids(posts)
	if len(got) != 2 || !got[mine1.ID] || !got[mine2.ID] {
		t.Errorf("ListByAuthor() = %v, want both of a's posts", got)
	}
	if got[theirs.ID] {
		t.Error("ListByAuthor() returned another user's post")
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestPostUpdate(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	post := createTestPost(t, db.Posts(), author, "before", model.StateDraft)

	title := "after"
	state := model.StatePublished
	tags := []string{"new"}
	updated, err := db.Posts().Update(context.Background(), post.ID, author.ID, repository.PostPatch{
		Title: &title,
		State: &state,
		Tags:  &tags,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Title != "after" || updated.State != model.StatePublished {
		t.Errorf("Update() returned %+v", updated)
	}

	found, _ := db.Posts().GetByID(context.Background(), post.ID)
	if found.Title != "after" {
		t.Errorf("persisted Title = %q, want %q", found.Title, "after")
	}
	if found.Description != post.Description {
		t.Errorf("Description changed to %q although it was not patched", found.Description)
	}
	if len(found.Tags) != 1 || found.Tags[0] != "new" {
		t.Errorf("Tags = %v, want [new]", found.Tags)
	}
}

func TestPostUpdate_NotOwnerLeavesStoreUnchanged(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	intruder := createTestUser(t, db.Users(), "intruder@example.com")
	post := createTestPost(t, db.Posts(), owner, "original", model.StateDraft)

	title := "hacked"
	state := model.StatePublished
	_, err := db.Posts().Update(context.Background(), post.ID, intruder.ID, repository.PostPatch{
		Title: &title,
		State: &state,
	})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Update() error = %v, want ErrForbidden", err)
	}

	found, _ := db.Posts().GetByID(context.Background(), post.ID)
	if found.Title != "original" || found.State != model.StateDraft {
		t.Errorf("post was mutated by a non-owner: %+v", found)
	}
}

func TestPostUpdate_NotFound(t *testing.T) {
	db := newTestDB(t)

	title := "x"
	_, err := db.Posts().Update(context.Background(), "missing", "anyone", repository.PostPatch{Title: &title})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestPostDelete_RemovesFromOwnerSet(t *testing.T) {
	db := newTestDB(t)
	author := createTestUser(t, db.Users(), "a@example.com")
	keep := createTestPost(t, db.Posts(), author, "keep", model.StatePublished)
	gone := createTestPost(t, db.Posts(), author, "gone", model.StatePublished)

	deleted, err := db.Posts().Delete(context.Background(), gone.ID, author.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.ID != gone.ID {
		t.Errorf("Delete() returned post %s, want %s", deleted.ID, gone.ID)
	}

	if _, err := db.Posts().GetByID(context.Background(), gone.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}

	user, err := db.Users().GetByID(context.Background(), author.ID)
	if err != nil {
		t.Fatalf("GetByID(user) error = %v", err)
	}
	if len(user.Posts) != 1 || user.Posts[0] != keep.ID {
		t.Errorf("user.Posts = %v, want [%s]", user.Posts, keep.ID)
	}

	mine, _ := db.Posts().ListByAuthor(context.Background(), author.ID)
	if ids(mine)[gone.ID] {
		t.Error("ListByAuthor() still returns the deleted post")
	}
}

func TestPostDelete_NotOwner(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db.Users(), "owner@example.com")
	intruder := createTestUser(t, db.Users(), "intruder@example.com")
	post := createTestPost(t, db.Posts(), owner, "mine", model.StatePublished)

	_, err := db.Posts().Delete(context.Background(), post.ID, intruder.ID)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Delete() error = %v, want ErrForbidden", err)
	}

	if _, err := db.Posts().GetByID(context.Background(), post.ID); err != nil {
		t.Errorf("post should still exist after forbidden delete: %v", err)
	}
	user, _ := db.Users().GetByID(context.Background(), owner.ID)
	if len(user.Posts) != 1 {
		t.Errorf("owner.Posts = %v, want the post still listed", user.Posts)
	}
}

func TestPostDelete_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Posts().Delete(context.Background(), "missing", "anyone")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}
