package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"marketplace/config"
	"marketplace/logger"
	"marketplace/models"
	"marketplace/store"
	"marketplace/store/memstore"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentPush struct {
	endpoint string
	payload  map[string]interface{}
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentPush
	status map[string]int
}

func (f *fakeSender) send(message []byte, s *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var payload map[string]interface{}
	_ = json.Unmarshal(message, &payload)
	f.sent = append(f.sent, sentPush{endpoint: s.Endpoint, payload: payload})

	code := http.StatusCreated
	if c, ok := f.status[s.Endpoint]; ok {
		code = c
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newWebPush(t *testing.T) (*WebPush, store.Repository[models.PushSubscription], *fakeSender) {
	t.Helper()
	subs := memstore.NewCollection[models.PushSubscription]("endpoint")
	wp := NewWebPush(subs, config.PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", Subject: "mailto:ops@x.com"}, logger.Discard())
	fake := &fakeSender{status: map[string]int{}}
	wp.Send = fake.send
	return wp, subs, fake
}

func TestSubscribeUpsertsByEndpoint(t *testing.T) {
	wp, subs, _ := newWebPush(t)
	ctx := context.Background()

	first, err := wp.Subscribe(ctx, "u1", "A@X.com", "https://push/1", models.PushKeys{P256dh: "k", Auth: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", first.OwnerEmail)

	second, err := wp.Subscribe(ctx, "u2", "b@x.com", "https://push/1", models.PushKeys{P256dh: "k2", Auth: "a2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "b@x.com", second.OwnerEmail)

	n, _ := subs.Count(ctx, store.Query{})
	assert.Equal(t, int64(1), n)
}

func TestSubscribeDisabled(t *testing.T) {
	wp := NewWebPush(memstore.NewCollection[models.PushSubscription](), config.PushConfig{}, logger.Discard())
	assert.False(t, wp.Enabled())
	_, err := wp.Subscribe(context.Background(), "u1", "a@x.com", "https://push/1", models.PushKeys{})
	assert.ErrorIs(t, err, ErrPushDisabled)
	assert.NoError(t, wp.Notify(context.Background(), "a@x.com", Notification{Title: "x"}))
}

func TestNotifyDeletesGoneEndpoints(t *testing.T) {
	wp, subs, fake := newWebPush(t)
	ctx := context.Background()
	_, err := wp.Subscribe(ctx, "u1", "a@x.com", "https://push/live", models.PushKeys{P256dh: "k", Auth: "a"})
	require.NoError(t, err)
	_, err = wp.Subscribe(ctx, "u1", "a@x.com", "https://push/gone", models.PushKeys{P256dh: "k", Auth: "a"})
	require.NoError(t, err)
	_, err = wp.Subscribe(ctx, "u2", "b@x.com", "https://push/other", models.PushKeys{P256dh: "k", Auth: "a"})
	require.NoError(t, err)
	fake.status["https://push/gone"] = http.StatusGone

	require.NoError(t, wp.Notify(ctx, "A@x.com", Notification{Title: "New message", Body: "hi", URL: "/services/1"}))

	require.Len(t, fake.sent, 2)
	assert.Equal(t, "New message", fake.sent[0].payload["title"])

	remaining, err := subs.List(ctx, store.Query{}.Sort("endpoint", false))
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, "https://push/live", remaining[0].Endpoint)
	assert.Equal(t, "https://push/other", remaining[1].Endpoint)
}

type recordingNotifier struct {
	mu    sync.Mutex
	got   []string
	fail  bool
	calls chan struct{}
}

func (r *recordingNotifier) Notify(_ context.Context, recipient string, n Notification) error {
	r.mu.Lock()
	r.got = append(r.got, recipient+":"+n.Title)
	r.mu.Unlock()
	if r.calls != nil {
		r.calls <- struct{}{}
	}
	if r.fail {
		return errors.New("unreachable")
	}
	return nil
}

func TestDispatcherFansOut(t *testing.T) {
	ok := &recordingNotifier{}
	broken := &recordingNotifier{fail: true}
	d := NewDispatcher(logger.Discard(), ok, nil, broken)

	d.Send(context.Background(), []string{"a@x.com", "b@x.com"}, Notification{Title: "Paid"})
	assert.Equal(t, []string{"a@x.com:Paid", "b@x.com:Paid"}, ok.got)
	assert.Len(t, broken.got, 2)
}

func TestDispatchRunsInBackground(t *testing.T) {
	rec := &recordingNotifier{calls: make(chan struct{}, 1)}
	d := NewDispatcher(logger.Discard(), rec)

	d.Dispatch([]string{"a@x.com"}, Notification{Title: "Hello"})
	select {
	case <-rec.calls:
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	var nilDispatcher *Dispatcher
	nilDispatcher.Dispatch([]string{"a@x.com"}, Notification{})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcde...", Truncate("abcdefghij", 5))
	// never splits a multi-byte rune
	assert.Equal(t, "ab...", Truncate("abé", 3))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "notifications:a@x.com", Channel("A@X.com"))
}

func TestNewRedisDisabledWithoutAddr(t *testing.T) {
	p, err := NewRedis(context.Background(), config.RedisConfig{}, logger.Discard())
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestRedisPublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := NewRedis(ctx, config.RedisConfig{Addr: addr}, logger.Discard())
	require.NoError(t, err)
	defer p.Close()

	sub := p.Subscribe(ctx, "a@x.com")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Notify(ctx, "a@x.com", Notification{Title: "Ping"}))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"title":"Ping"`)
}
