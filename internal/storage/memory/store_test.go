package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/repository"
)

func TestUsers_CreateAndLookup(t *testing.T) {
	s := NewUsers()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.User{ID: "1", Email: "a@x.io", FullName: "Zed"}))
	require.NoError(t, s.Create(ctx, &model.User{ID: "2", Email: "b@x.io", FullName: "Amy"}))
	require.NoError(t, s.Create(ctx, &model.User{ID: "3", Email: "c@x.io", FullName: "Bob"}))

	err := s.Create(ctx, &model.User{ID: "4", Email: "a@x.io"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	u, err := s.GetByEmail(ctx, "b@x.io")
	require.NoError(t, err)
	assert.Equal(t, "2", u.ID)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	others, err := s.FindOtherUsers(ctx, "1")
	require.NoError(t, err)
	require.Len(t, others, 2)
	assert.Equal(t, "Amy", others[0].FullName)
	assert.Equal(t, "Bob", others[1].FullName)
}

func TestUsers_UpdateProfile(t *testing.T) {
	s := NewUsers()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &model.User{ID: "1", Email: "a@x.io", FullName: "Old"}))

	require.NoError(t, s.UpdateProfile(ctx, "1", "New", "bio", "/api/images/p.png"))
	u, _ := s.GetByID(ctx, "1")
	assert.Equal(t, "New", u.FullName)
	assert.Equal(t, "bio", u.Bio)
	assert.Equal(t, "/api/images/p.png", u.ProfilePic)

	assert.ErrorIs(t, s.UpdateProfile(ctx, "nope", "x", "", ""), repository.ErrNotFound)
}

func TestMessages_OrderAndSeen(t *testing.T) {
	s := NewMessages()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insert := func(id, from, to string, at int) {
		require.NoError(t, s.Insert(ctx, &model.Message{ID: id, SenderID: from, ReceiverID: to, Text: id, CreatedAt: base.Add(time.Duration(at) * time.Second)}))
	}
	insert("m2", "A", "B", 2)
	insert("m1", "B", "A", 1)
	insert("m3", "A", "B", 3)
	insert("x", "A", "C", 0)

	assert.ErrorIs(t, s.Insert(ctx, &model.Message{ID: "m1"}), repository.ErrAlreadyExists)

	between, err := s.FindBetween(ctx, "B", "A")
	require.NoError(t, err)
	require.Len(t, between, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{between[0].ID, between[1].ID, between[2].ID})

	require.NoError(t, s.UpdateSeen(ctx, "m2", "C"))
	unseen, _ := s.FindUnseen(ctx, "A", "B")
	assert.Len(t, unseen, 2, "only the receiver can mark a message seen")

	require.NoError(t, s.UpdateSeen(ctx, "m2", "B"))
	unseen, _ = s.FindUnseen(ctx, "A", "B")
	require.Len(t, unseen, 1)
	assert.Equal(t, "m3", unseen[0].ID)

	require.NoError(t, s.UpdateSeenBulk(ctx, "A", "B"))
	unseen, _ = s.FindUnseen(ctx, "A", "B")
	assert.Empty(t, unseen)

	m, err := s.GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, m.Seen, "B->A message is untouched by bulk A->B update")
	other, _ := s.FindUnseen(ctx, "A", "C")
	assert.Len(t, other, 1)
}
