package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHandler_DeliversAndCleansUp(t *testing.T) {
	reg := notify.New(notify.WithLogger(zap.NewNop()))
	srv := httptest.NewServer(NewHandler(reg, 8))
	defer srv.Close()

	conn := dial(t, srv, "A@x.com")
	require.Eventually(t, func() bool { return reg.ConnectionCount("a@x.com") == 1 }, 2*time.Second, 10*time.Millisecond)

	ok, err := reg.SendNotification(context.Background(), "a@x.com", map[string]string{"title": "Hi"})
	require.NoError(t, err)
	require.True(t, ok)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.JSONEq(t, `{"type":"notification","data":{"title":"Hi"}}`, string(msg))

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	require.Eventually(t, func() bool { return reg.ConnectionCount("a@x.com") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_SharesRegistryAcrossDevices(t *testing.T) {
	reg := notify.New(notify.WithLogger(zap.NewNop()))
	srv := httptest.NewServer(NewHandler(reg, 8))
	defer srv.Close()

	c1 := dial(t, srv, "a@x.com")
	defer c1.Close()
	c2 := dial(t, srv, "a@x.com")
	defer c2.Close()
	require.Eventually(t, func() bool { return reg.ConnectionCount("a@x.com") == 2 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, reg.UpdateUnreadCount(context.Background(), "a@x.com", 5))
	for _, c := range []*websocket.Conn{c1, c2} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := c.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"unreadCount","data":5}`, string(msg))
	}
}

func TestHandler_MissingUser(t *testing.T) {
	reg := notify.New(notify.WithLogger(zap.NewNop()))
	rec := httptest.NewRecorder()

	NewHandler(reg, 8).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ConnectWhileDeliveriesOverflow(t *testing.T) {
	reg := notify.New(notify.WithLogger(zap.NewNop()))
	srv := httptest.NewServer(NewHandler(reg, 1))
	defer srv.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = reg.SendNotification(context.Background(), "a@x.com", map[string]int{"n": 1})
			}
		}
	}()

	for i := 0; i < 50; i++ {
		conn := dial(t, srv, "a@x.com")
		conn.Close()
	}
	close(stop)
	wg.Wait()

	require.Eventually(t, func() bool { return reg.ConnectionCount("a@x.com") == 0 }, 2*time.Second, 10*time.Millisecond)
}
