package push

import (
	"context"
	"encoding/json"
	"net/http"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/model"
	"github.com/dmchat/internal/storage"
)

const maxBodyRunes = 120

// sendFunc — webpush.SendNotificationWithContext; подменяется в тестах.
type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Notifier implements chat.Notifier over Web Push subscriptions kept in storage.Store.
type Notifier struct {
	store storage.Store
	opts  *webpush.Options
	send  sendFunc
}

// NewNotifier — subscriber: контакт отправителя для push-сервиса ("mailto:..." или URL).
func NewNotifier(store storage.Store, keys *VAPIDKeys, subscriber string) *Notifier {
	return &Notifier{
		store: store,
		opts: &webpush.Options{
			Subscriber:      subscriber,
			VAPIDPublicKey:  keys.PublicKey,
			VAPIDPrivateKey: keys.PrivateKey,
			TTL:             30,
		},
		send: webpush.SendNotificationWithContext,
	}
}

func (n *Notifier) PublicKey() string { return n.opts.VAPIDPublicKey }

type payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func messagePayload(m model.Message) payload {
	body := m.Text
	if body == "" {
		body = "Изображение"
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		r := []rune(body)
		body = string(r[:maxBodyRunes-3]) + "..."
	}
	return payload{
		Title: "Новое сообщение",
		Body:  body,
		Data:  map[string]string{"sender_id": m.SenderID, "message_id": m.ID},
	}
}

// NotifyMessage sends a best-effort push to every subscription of the receiver.
// Gone subscriptions (404/410) are removed.
func (n *Notifier) NotifyMessage(ctx context.Context, m model.Message) {
	subs, err := n.store.PushSubscriptions(ctx, m.ReceiverID)
	if err != nil {
		logger.Errorf("push subscriptions user=%s: %v", m.ReceiverID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(messagePayload(m))
	if err != nil {
		logger.Errorf("push payload message=%s: %v", m.ID, err)
		return
	}
	for _, sub := range subs {
		wp := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := n.send(ctx, data, wp, n.opts)
		if err != nil {
			logger.Errorf("push send user=%s: %v", m.ReceiverID, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
			if err := n.store.RemovePushSubscription(ctx, m.ReceiverID, sub.Endpoint); err != nil {
				logger.Errorf("push remove subscription user=%s: %v", m.ReceiverID, err)
			}
		}
	}
}
