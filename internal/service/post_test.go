package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blogging-api/internal/apperror"
	"github.com/sakif/blogging-api/internal/auth"
	"github.com/sakif/blogging-api/internal/model"
	"github.com/sakif/blogging-api/internal/repository"
	sqliteRepo "github.com/sakif/blogging-api/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakePhotos is an in-memory storage.PhotoStore.
type fakePhotos struct {
	mu        sync.Mutex
	files     map[string][]byte
	saveErr   error
	removeErr error
}

func newFakePhotos() *fakePhotos {
	return &fakePhotos{files: make(map[string][]byte)}
}

func (f *fakePhotos) Save(_ context.Context, name, _ string, r io.Reader, size int64) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = data
	return name, nil
}

func (f *fakePhotos) Remove(_ context.Context, name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, name)
	return nil
}

type postFixture struct {
	svc    *PostService
	db     *sqliteRepo.DB
	photos *fakePhotos
	ada    auth.Caller
	alan   auth.Caller
}

func newPostFixture(t *testing.T) *postFixture {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &postFixture{db: db, photos: newFakePhotos()}
	f.svc = NewPostService(db.Posts(), f.photos, discardLogger())
	f.ada = f.user(t, "Ada", "Lovelace", "ada@example.com")
	f.alan = f.user(t, "Alan", "Turing", "alan@example.com")
	return f
}

func (f *postFixture) user(t *testing.T, first, last, email string) auth.Caller {
	t.Helper()
	u := &model.User{FirstName: first, LastName: last, Email: email, PasswordHash: "x"}
	require.NoError(t, f.db.Users().Create(context.Background(), u))
	return auth.Caller{ID: u.ID, FirstName: first, LastName: last}
}

func (f *postFixture) create(t *testing.T, caller auth.Caller, title string) *model.Post {
	t.Helper()
	p, err := f.svc.Create(context.Background(), caller, CreatePostInput{
		Title:       title,
		Description: "about " + title,
		Body:        "a short body",
		Tags:        []string{"go"},
	}, nil)
	require.NoError(t, err)
	return p
}

func (f *postFixture) publish(t *testing.T, caller auth.Caller, id string) {
	t.Helper()
	state := "published"
	_, err := f.svc.Update(context.Background(), caller, id, UpdatePostInput{State: &state})
	require.NoError(t, err)
}

// =========================================================================
// READ TIME TESTS
// =========================================================================

func TestReadTime(t *testing.T) {
	tests := []struct {
		words int
		want  string
	}{
		{0, "1 mins"},
		{1, "1 mins"},
		{225, "1 mins"},
		{226, "2 mins"},
		{450, "2 mins"},
		{451, "3 mins"},
	}
	for _, tt := range tests {
		body := strings.TrimSpace(strings.Repeat("word ", tt.words))
		assert.Equal(t, tt.want, ReadTime(body), "%d words", tt.words)
	}

	assert.Equal(t, "1 mins", ReadTime("  \n\t  "))
	assert.Equal(t, "1 mins", ReadTime("two\n\twords"))
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_DerivesFields(t *testing.T) {
	f := newPostFixture(t)

	post, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title:       "  Hello  ",
		Description: "first",
		Body:        strings.Repeat("w ", 300),
		Tags:        []string{" go ", "go", "", "intro"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "Ada Lovelace", post.Author)
	assert.Equal(t, f.ada.ID, post.AuthorID)
	assert.Equal(t, model.StateDraft, post.State)
	assert.Equal(t, int64(0), post.ReadCount)
	assert.Equal(t, "2 mins", post.ReadTime)
	assert.Equal(t, []string{"go", "intro"}, post.Tags)
	assert.Empty(t, post.CoverPhoto)

	user, err := f.db.Users().GetByID(context.Background(), f.ada.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, user.Posts)
}

func TestCreate_Validation(t *testing.T) {
	f := newPostFixture(t)

	for _, in := range []CreatePostInput{
		{Description: "d", Body: "b"},
		{Title: "t", Description: "   ", Body: "b"},
		{Title: "t", Description: "d"},
	} {
		_, err := f.svc.Create(context.Background(), f.ada, in, nil)
		assert.True(t, errors.Is(err, apperror.ErrValidation), "input %+v: got %v", in, err)
	}

	mine, _ := f.svc.ListByAuthor(context.Background(), f.ada)
	assert.Empty(t, mine)
}

func TestCreate_WithCoverPhoto(t *testing.T) {
	f := newPostFixture(t)

	post, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title: "Sunset Pics", Description: "d", Body: "b",
	}, &Upload{ContentType: "image/jpeg", Size: 4, Reader: strings.NewReader("jpeg")})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(post.CoverPhoto, "post-sunset-pics-"), post.CoverPhoto)
	assert.True(t, strings.HasSuffix(post.CoverPhoto, ".jpeg"), post.CoverPhoto)
	assert.Equal(t, []byte("jpeg"), f.photos.files[post.CoverPhoto])
}

func TestCreate_RejectsNonImageBeforeStoring(t *testing.T) {
	f := newPostFixture(t)

	_, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title: "t", Description: "d", Body: "b",
	}, &Upload{ContentType: "application/pdf", Size: 3, Reader: strings.NewReader("pdf")})

	assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
	assert.Empty(t, f.photos.files)
	mine, _ := f.svc.ListByAuthor(context.Background(), f.ada)
	assert.Empty(t, mine)
}

func TestCreate_RemovesPhotoWhenStoreFails(t *testing.T) {
	f := newPostFixture(t)
	ghost := auth.Caller{ID: "deleted-user", FirstName: "G", LastName: "H"}

	_, err := f.svc.Create(context.Background(), ghost, CreatePostInput{
		Title: "t", Description: "d", Body: "b",
	}, &Upload{ContentType: "image/png", Size: 3, Reader: strings.NewReader("png")})

	require.Error(t, err)
	assert.Empty(t, f.photos.files, "photo of a post that was never stored must be removed")
}

func TestCreate_PhotoStoreFailure(t *testing.T) {
	f := newPostFixture(t)
	f.photos.saveErr = errors.New("bucket gone")

	_, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title: "t", Description: "d", Body: "b",
	}, &Upload{ContentType: "image/png", Size: 1, Reader: strings.NewReader("x")})

	require.Error(t, err)
	mine, _ := f.svc.ListByAuthor(context.Background(), f.ada)
	assert.Empty(t, mine)
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestGetPublished(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, f.ada, "hello")
	ctx := context.Background()

	_, err := f.svc.GetPublished(ctx, post.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "draft must be hidden, got %v", err)

	f.publish(t, f.ada, post.ID)

	got, err := f.svc.GetPublished(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ReadCount)

	got, err = f.svc.GetPublished(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ReadCount)
}

func TestListPublished(t *testing.T) {
	f := newPostFixture(t)
	published := f.create(t, f.ada, "Foo Bar")
	f.publish(t, f.ada, published.ID)
	f.create(t, f.ada, "Foo Draft")

	posts, err := f.svc.ListPublished(context.Background(), repository.PostFilter{Title: "  foo "})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, published.ID, posts[0].ID)

	posts, err = f.svc.ListPublished(context.Background(), repository.PostFilter{})
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestListByAuthor(t *testing.T) {
	f := newPostFixture(t)
	draft := f.create(t, f.ada, "draft")
	pub := f.create(t, f.ada, "pub")
	f.publish(t, f.ada, pub.ID)
	f.create(t, f.alan, "not mine")

	posts, err := f.svc.ListByAuthor(context.Background(), f.ada)
	require.NoError(t, err)

	ids := []string{}
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{draft.ID, pub.ID}, ids)
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, f.ada, "before")

	title := "after"
	body := strings.Repeat("w ", 500)
	tags := []string{"b", " a ", "b"}
	got, err := f.svc.Update(context.Background(), f.ada, post.ID, UpdatePostInput{
		Title: &title,
		Body:  &body,
		Tags:  &tags,
	})
	require.NoError(t, err)

	assert.Equal(t, "after", got.Title)
	assert.Equal(t, "3 mins", got.ReadTime)
	assert.Equal(t, []string{"b", "a"}, got.Tags)
	assert.Equal(t, post.Description, got.Description)
	assert.Equal(t, model.StateDraft, got.State)
}

func TestUpdate_Validation(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, f.ada, "keep")

	blank := "  "
	bogus := "archived"
	for name, in := range map[string]UpdatePostInput{
		"blank title":       {Title: &blank},
		"blank body":        {Body: &blank},
		"blank description": {Description: &blank},
		"unknown state":     {State: &bogus},
	} {
		_, err := f.svc.Update(context.Background(), f.ada, post.ID, in)
		assert.True(t, errors.Is(err, apperror.ErrValidation), "%s: got %v", name, err)
	}

	stored, _ := f.db.Posts().GetByID(context.Background(), post.ID)
	assert.Equal(t, "keep", stored.Title)
}

func TestUpdate_NotOwner(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, f.ada, "mine")

	state := "published"
	_, err := f.svc.Update(context.Background(), f.alan, post.ID, UpdatePostInput{State: &state})
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)

	stored, _ := f.db.Posts().GetByID(context.Background(), post.ID)
	assert.Equal(t, model.StateDraft, stored.State)
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete_RemovesPhoto(t *testing.T) {
	f := newPostFixture(t)
	post, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title: "pic", Description: "d", Body: "b",
	}, &Upload{ContentType: "image/png", Size: 3, Reader: strings.NewReader("png")})
	require.NoError(t, err)
	require.Len(t, f.photos.files, 1)

	require.NoError(t, f.svc.Delete(context.Background(), f.ada, post.ID))

	assert.Empty(t, f.photos.files)
	mine, _ := f.svc.ListByAuthor(context.Background(), f.ada)
	assert.Empty(t, mine)
}

func TestDelete_PhotoFailureIsNotFatal(t *testing.T) {
	f := newPostFixture(t)
	post, err := f.svc.Create(context.Background(), f.ada, CreatePostInput{
		Title: "pic", Description: "d", Body: "b",
	}, &Upload{ContentType: "image/png", Size: 3, Reader: strings.NewReader("png")})
	require.NoError(t, err)
	f.photos.removeErr = errors.New("permission denied")

	assert.NoError(t, f.svc.Delete(context.Background(), f.ada, post.ID))

	_, err = f.db.Posts().GetByID(context.Background(), post.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDelete_NotOwner(t *testing.T) {
	f := newPostFixture(t)
	post := f.create(t, f.ada, "mine")

	err := f.svc.Delete(context.Background(), f.alan, post.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden), "got %v", err)

	_, err = f.db.Posts().GetByID(context.Background(), post.ID)
	assert.NoError(t, err)
}
