package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmchat/internal/auth"
	"github.com/dmchat/internal/blob"
	"github.com/dmchat/internal/chat"
	"github.com/dmchat/internal/middleware"
	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/presence"
	"github.com/dmchat/internal/storage/memory"
)

const testBodyLimit = 64 << 10

type api struct {
	t      *testing.T
	router http.Handler
	msgs   *memory.Messages
}

func newAPI(t *testing.T) *api {
	t.Helper()
	users := memory.NewUsers()
	messages := memory.NewMessages()
	store := memory.New()
	reg := presence.NewRegistry()
	svc := chat.NewService(users, messages, chat.NewRouter(reg), chat.NewCounter(messages), nil)
	images := blob.New(t.TempDir(), "", 16<<10)
	tokens := auth.NewTokens("test-secret", time.Hour)

	authH := NewAuthHandler(users, tokens, images, testBodyLimit)
	msgH := NewMessageHandler(svc, users, images, testBodyLimit)
	imageH := NewImageHandler(images)
	pushH := NewPushHandler(store, "vapid-pub")

	r := chi.NewRouter()
	r.Post("/api/auth/signup", authH.Signup)
	r.Post("/api/auth/login", authH.Login)
	r.Get("/api/config/push", pushH.GetConfig)
	r.Get("/api/images/{name}", imageH.Serve)
	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))
		r.Get("/api/auth/check", authH.Check)
		r.Put("/api/auth/update-profile", authH.UpdateProfile)
		r.Get("/api/messages/users", msgH.GetUsers)
		r.Get("/api/messages/{id}", msgH.GetMessages)
		r.Put("/api/messages/mark/{id}", msgH.MarkSeen)
		r.Post("/api/messages/send/{id}", msgH.Send)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Post("/api/push/unsubscribe", pushH.Unsubscribe)
	})
	return &api{t: t, router: r, msgs: messages}
}

func (a *api) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	var resp map[string]json.RawMessage
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

type account struct {
	id    string
	token string
}

func (a *api) signup(name, email string) account {
	a.t.Helper()
	rec, resp := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": name, "email": email, "password": "secret123", "bio": "hi",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var u model.UserPublic
	require.NoError(a.t, json.Unmarshal(resp["userData"], &u))
	var token string
	require.NoError(a.t, json.Unmarshal(resp["token"], &token))
	return account{id: u.ID, token: token}
}

func TestAuthFlow(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("Alice", "Alice@Example.com")

	rec, _ := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Other", "email": "alice@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"fullName": "Weak", "email": "weak@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, resp["token"])
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.NotContains(t, rec.Body.String(), "password")

	rec, resp = a.do(http.MethodGet, "/api/auth/check", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var u model.UserPublic
	require.NoError(t, json.Unmarshal(resp["userData"], &u))
	assert.Equal(t, alice.id, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)

	rec, _ = a.do(http.MethodGet, "/api/auth/check", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateProfile(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("Alice", "alice@example.com")
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 1, 2, 3}

	rec, resp := a.do(http.MethodPut, "/api/auth/update-profile", alice.token, map[string]string{
		"fullName":   "Alice B",
		"bio":        "new bio",
		"profilePic": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u model.UserPublic
	require.NoError(t, json.Unmarshal(resp["userData"], &u))
	assert.Equal(t, "Alice B", u.FullName)
	assert.Equal(t, "new bio", u.Bio)
	require.True(t, strings.HasPrefix(u.ProfilePic, "/api/images/"))

	rec, _ = a.do(http.MethodGet, u.ProfilePic, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, png, rec.Body.Bytes())

	rec, _ = a.do(http.MethodPut, "/api/auth/update-profile", alice.token, map[string]string{
		"profilePic": "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello")),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesFlow(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("Alice", "alice@example.com")
	bob := a.signup("Bob", "bob@example.com")

	rec, resp := a.do(http.MethodPost, "/api/messages/send/"+bob.id, alice.token, map[string]string{"text": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sent model.Message
	require.NoError(t, json.Unmarshal(resp["newMessage"], &sent))
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, alice.id, sent.SenderID)
	assert.False(t, sent.Seen)

	gif := base64.StdEncoding.EncodeToString([]byte("GIF89a...."))
	rec, resp = a.do(http.MethodPost, "/api/messages/send/"+bob.id, alice.token, map[string]string{"image": "data:image/gif;base64," + gif})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var withImage model.Message
	require.NoError(t, json.Unmarshal(resp["newMessage"], &withImage))
	assert.True(t, strings.HasPrefix(withImage.Image, "/api/images/"))

	rec, resp = a.do(http.MethodGet, "/api/messages/users", bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unseen map[string]int
	require.NoError(t, json.Unmarshal(resp["unseenMessages"], &unseen))
	assert.Equal(t, map[string]int{alice.id: 2}, unseen)
	var users []model.UserPublic
	require.NoError(t, json.Unmarshal(resp["users"], &users))
	require.Len(t, users, 1)
	assert.Equal(t, alice.id, users[0].ID)

	rec, _ = a.do(http.MethodPut, "/api/messages/mark/"+sent.ID, bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, resp = a.do(http.MethodGet, "/api/messages/users", bob.token, nil)
	require.NoError(t, json.Unmarshal(resp["unseenMessages"], &unseen))
	assert.Equal(t, map[string]int{alice.id: 1}, unseen)

	rec, resp = a.do(http.MethodGet, "/api/messages/"+alice.id, bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []model.Message
	require.NoError(t, json.Unmarshal(resp["messages"], &msgs))
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.True(t, m.Seen)
	}

	_, resp = a.do(http.MethodGet, "/api/messages/users", bob.token, nil)
	assert.JSONEq(t, `{}`, string(resp["unseenMessages"]))
}

func TestSendErrors(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("Alice", "alice@example.com")
	bob := a.signup("Bob", "bob@example.com")

	tests := []struct {
		name   string
		to     string
		body   any
		status int
	}{
		{"empty", bob.id, map[string]string{"text": "   "}, http.StatusBadRequest},
		{"to self", alice.id, map[string]string{"text": "hi"}, http.StatusBadRequest},
		{"unknown receiver", "ghost", map[string]string{"text": "hi"}, http.StatusNotFound},
		{"not an image", bob.id, map[string]string{"image": "data:image/png;base64,aGVsbG8="}, http.StatusBadRequest},
		{"bad json", bob.id, "{", http.StatusBadRequest},
		{"body too large", bob.id, map[string]string{"text": strings.Repeat("x", testBodyLimit+1)}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := a.do(http.MethodPost, "/api/messages/send/"+tt.to, alice.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.JSONEq(t, "false", string(resp["success"]))
		})
	}
	stored, _ := a.msgs.FindBetween(t.Context(), alice.id, bob.id)
	assert.Empty(t, stored, "rejected messages are never persisted")
}

func TestPushSubscriptions(t *testing.T) {
	a := newAPI(t)
	alice := a.signup("Alice", "alice@example.com")

	rec, resp := a.do(http.MethodGet, "/api/config/push", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"vapid-pub"`, string(resp["vapidPublicKey"]))

	rec, _ = a.do(http.MethodPost, "/api/push/subscribe", alice.token, map[string]any{
		"subscription": map[string]any{"endpoint": "https://push/1", "keys": map[string]string{"p256dh": "k", "auth": "a"}},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/push/subscribe", alice.token, map[string]any{
		"subscription": map[string]any{"endpoint": "https://push/2"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/push/unsubscribe", alice.token, map[string]string{"endpoint": "https://push/1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
