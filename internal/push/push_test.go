package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/storage"
	"github.com/dmchat/internal/storage/memory"
)

func subscription(endpoint string) storage.PushSubscription {
	s := storage.PushSubscription{Endpoint: endpoint}
	s.Keys.P256dh = "p256"
	s.Keys.Auth = "auth"
	return s
}

func TestEnsureVAPIDKeys_GeneratesOnceAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "vapid.json")

	first, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.NotEmpty(t, first.PublicKey)
	assert.NotEmpty(t, first.PrivateKey)

	second, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMessagePayload(t *testing.T) {
	p := messagePayload(model.Message{ID: "m1", SenderID: "A", Image: "/api/images/x.png"})
	assert.Equal(t, "Изображение", p.Body)
	assert.Equal(t, "A", p.Data["sender_id"])
	assert.Equal(t, "m1", p.Data["message_id"])

	long := strings.Repeat("я", 500)
	p = messagePayload(model.Message{Text: long})
	assert.Equal(t, maxBodyRunes, utf8.RuneCountInString(p.Body))
	assert.True(t, strings.HasSuffix(p.Body, "..."))
}

func TestNotifyMessage(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.AddPushSubscription(ctx, "B", subscription("https://push/live")))
	require.NoError(t, store.AddPushSubscription(ctx, "B", subscription("https://push/gone")))
	require.NoError(t, store.AddPushSubscription(ctx, "B", subscription("https://push/broken")))

	n := NewNotifier(store, &VAPIDKeys{PublicKey: "pub", PrivateKey: "priv"}, "mailto:test@example.com")
	assert.Equal(t, "pub", n.PublicKey())

	var sent []string
	n.send = func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		sent = append(sent, sub.Endpoint)
		var p struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		}
		require.NoError(t, json.Unmarshal(payload, &p))
		assert.Equal(t, "hi", p.Body)
		assert.Equal(t, "pub", opts.VAPIDPublicKey)
		switch sub.Endpoint {
		case "https://push/gone":
			return &http.Response{StatusCode: http.StatusGone, Body: io.NopCloser(strings.NewReader(""))}, nil
		case "https://push/broken":
			return nil, errors.New("network down")
		}
		return &http.Response{StatusCode: http.StatusCreated, Body: io.NopCloser(strings.NewReader(""))}, nil
	}

	n.NotifyMessage(ctx, model.Message{ID: "m1", SenderID: "A", ReceiverID: "B", Text: "hi"})

	assert.Equal(t, []string{"https://push/live", "https://push/gone", "https://push/broken"}, sent)
	subs, err := store.PushSubscriptions(ctx, "B")
	require.NoError(t, err)
	endpoints := make([]string, 0, len(subs))
	for _, s := range subs {
		endpoints = append(endpoints, s.Endpoint)
	}
	assert.Equal(t, []string{"https://push/live", "https://push/broken"}, endpoints)
}

func TestNotifyMessage_NoSubscriptions(t *testing.T) {
	n := NewNotifier(memory.New(), &VAPIDKeys{PublicKey: "pub", PrivateKey: "priv"}, "mailto:x@y.z")
	n.send = func(context.Context, []byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
		t.Fatal("send must not be called")
		return nil, nil
	}
	n.NotifyMessage(context.Background(), model.Message{ReceiverID: "nobody", Text: "hi"})
}
