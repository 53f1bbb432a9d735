package dispatcher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/SARVESHVARADKAR123/notifier/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendNotification(ctx context.Context, userKey string, payload any) (bool, error) {
	args := m.Called(ctx, userKey, payload)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotifier) UpdateUnreadCount(ctx context.Context, userKey string, count int) bool {
	return m.Called(ctx, userKey, count).Bool(0)
}

func TestDispatch_Notification(t *testing.T) {
	ctx := context.Background()
	n := new(MockNotifier)
	n.On("SendNotification", ctx, "a@x.com", json.RawMessage(`{"title":"New bill"}`)).Return(true, nil)

	ok, err := New(n).Dispatch(ctx, Event{Type: "notification", User: "a@x.com", Data: json.RawMessage(`{"title":"New bill"}`)})

	require.NoError(t, err)
	assert.True(t, ok)
	n.AssertExpectations(t)
}

func TestDispatch_UnreadCount(t *testing.T) {
	ctx := context.Background()
	n := new(MockNotifier)
	n.On("UpdateUnreadCount", ctx, "a@x.com", 0).Return(false)

	zero := 0
	ok, err := New(n).Dispatch(ctx, Event{Type: "unreadCount", User: "a@x.com", Count: &zero})

	require.NoError(t, err)
	assert.False(t, ok)
	n.AssertExpectations(t)
}

func TestDispatch_Invalid(t *testing.T) {
	neg := -1
	cases := map[string]Event{
		"missing user":   {Type: "notification", Data: json.RawMessage(`{}`)},
		"missing data":   {Type: "notification", User: "a@x.com"},
		"missing count":  {Type: "unreadCount", User: "a@x.com"},
		"negative count": {Type: "unreadCount", User: "a@x.com", Count: &neg},
		"unknown type":   {Type: "vendorApproved", User: "a@x.com"},
	}

	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			n := new(MockNotifier)
			_, err := New(n).Dispatch(context.Background(), ev)
			assert.ErrorIs(t, err, ErrInvalidEvent)
			n.AssertNotCalled(t, "SendNotification", mock.Anything, mock.Anything, mock.Anything)
			n.AssertNotCalled(t, "UpdateUnreadCount", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

type sink struct{ frames [][]byte }

func (s *sink) Write(_ context.Context, frame []byte) error {
	s.frames = append(s.frames, frame)
	return nil
}

func TestHandle_DeliversThroughRegistry(t *testing.T) {
	reg := notify.New(notify.WithLogger(zap.NewNop()))
	s := &sink{}
	reg.Register("Ops@Market.io", s)

	d := New(reg)
	d.Handle(context.Background(), []byte(`{"type":"notification","user":"ops@market.io","data":{"title":"Vendor approved","read":false}}`))
	d.Handle(context.Background(), []byte(`{"type":"unreadCount","user":"OPS@market.io","count":2}`))
	d.Handle(context.Background(), []byte(`not json`))
	d.Handle(context.Background(), []byte(`{"type":"unreadCount","user":"ops@market.io"}`))

	require.Len(t, s.frames, 2)
	assert.JSONEq(t, `{"type":"notification","data":{"title":"Vendor approved","read":false}}`, string(s.frames[0]))
	assert.JSONEq(t, `{"type":"unreadCount","data":2}`, string(s.frames[1]))
}
