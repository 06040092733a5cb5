package progress_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lamontai/lamontai/internal/progress"
)

func dial(t *testing.T, hub *progress.Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub := progress.NewHub(zap.NewNop())
	userID := uuid.New()
	conn := dial(t, hub, userID)

	require.Eventually(t, func() bool {
		return hub.Subscribers(userID) == 1
	}, time.Second, 10*time.Millisecond)

	articleID := uuid.New()
	hub.Publish(userID, progress.Event{ArticleID: articleID, Status: "generating"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev progress.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, articleID, ev.ArticleID)
	assert.Equal(t, "generating", ev.Status)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestPublishIsScopedToUser(t *testing.T) {
	hub := progress.NewHub(zap.NewNop())
	alice := uuid.New()
	bob := uuid.New()
	aliceConn := dial(t, hub, alice)
	bobConn := dial(t, hub, bob)

	require.Eventually(t, func() bool {
		return hub.Subscribers(alice) == 1 && hub.Subscribers(bob) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(alice, progress.Event{ArticleID: uuid.New(), Status: "completed"})

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := aliceConn.ReadMessage()
	require.NoError(t, err)

	bobConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = bobConn.ReadMessage()
	assert.Error(t, err, "bob should not receive alice's events")
}

func TestPublishDuringDisconnectDoesNotPanic(t *testing.T) {
	hub := progress.NewHub(zap.NewNop())
	userID := uuid.New()
	ev := progress.Event{ArticleID: uuid.New(), Status: "generating"}

	// Publishers run concurrently with clients dropping off; a publish that
	// lands while a client is being removed must be a no-op, not a crash.
	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for {
			select {
			case <-stop:
				return
			default:
				hub.Publish(userID, ev)
			}
		}
	}()

	for i := 0; i < 20; i++ {
		conn := dial(t, hub, userID)
		require.Eventually(t, func() bool {
			return hub.Subscribers(userID) >= 1
		}, time.Second, time.Millisecond)
		conn.Close()
	}
	close(stop)
	<-published

	require.Eventually(t, func() bool {
		return hub.Subscribers(userID) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDisconnectRemovesSubscriber(t *testing.T) {
	hub := progress.NewHub(zap.NewNop())
	userID := uuid.New()
	conn := dial(t, hub, userID)

	require.Eventually(t, func() bool {
		return hub.Subscribers(userID) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.Subscribers(userID) == 0
	}, time.Second, 10*time.Millisecond)
}
