package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketplace/config"
	"marketplace/models"
	"marketplace/store"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

var ErrPushDisabled = errors.New("web push is not configured")

// SendFunc matches webpush.SendNotification.
type SendFunc func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// WebPush stores browser subscriptions and delivers VAPID-signed notifications to them.
type WebPush struct {
	subs       store.Repository[models.PushSubscription]
	publicKey  string
	privateKey string
	subject    string
	log        *logrus.Logger
	ttl        int
	Send       SendFunc
}

func NewWebPush(subs store.Repository[models.PushSubscription], cfg config.PushConfig, log *logrus.Logger) *WebPush {
	return &WebPush{
		subs:       subs,
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subject:    cfg.Subject,
		log:        log,
		ttl:        30,
		Send:       webpush.SendNotification,
	}
}

func (w *WebPush) Enabled() bool {
	return w.publicKey != "" && w.privateKey != ""
}

func (w *WebPush) PublicKey() string { return w.publicKey }

// Subscribe registers endpoint for the owner, replacing any earlier registration of the same endpoint.
func (w *WebPush) Subscribe(ctx context.Context, ownerID, ownerEmail, endpoint string, keys models.PushKeys) (*models.PushSubscription, error) {
	if !w.Enabled() {
		return nil, ErrPushDisabled
	}
	email := models.NormalizeEmail(ownerEmail)

	existing, err := w.subs.FindOne(ctx, store.Query{}.Eq("endpoint", endpoint))
	switch {
	case err == nil:
		return w.subs.Update(ctx, existing.ID.Hex(), bson.M{
			"ownerId":    ownerID,
			"ownerEmail": email,
			"keys":       keys,
		})
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	sub := &models.PushSubscription{
		OwnerID:    ownerID,
		OwnerEmail: email,
		Endpoint:   endpoint,
		Keys:       keys,
	}
	if err := w.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Notify sends n to every endpoint the recipient registered. Gone endpoints are removed.
func (w *WebPush) Notify(ctx context.Context, recipient string, n Notification) error {
	if !w.Enabled() {
		return nil
	}
	subs, err := w.subs.List(ctx, store.Query{}.Eq("ownerEmail", models.NormalizeEmail(recipient)))
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": n.Title,
		"body":  n.Body,
		"data": map[string]interface{}{
			"url":       n.URL,
			"timestamp": time.Now().Unix(),
			"extra":     n.Data,
		},
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		resp, err := w.Send(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}, &webpush.Options{
			Subscriber:      strings.TrimPrefix(w.subject, "mailto:"),
			VAPIDPublicKey:  w.publicKey,
			VAPIDPrivateKey: w.privateKey,
			TTL:             w.ttl,
		})
		if resp != nil {
			resp.Body.Close()
		}
		if err == nil && resp != nil && (resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound) {
			w.log.WithField("endpoint", sub.Endpoint).Info("Push subscription expired, deleting")
			if delErr := w.subs.Delete(ctx, sub.ID.Hex()); delErr != nil {
				errs = append(errs, delErr)
			}
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
