package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IDsAreUnique(t *testing.T) {
	r := newTestRegistry(t)

	seen := make(map[string]struct{})
	for u := 0; u < 5; u++ {
		for i := 0; i < 20; i++ {
			id := r.Register(fmt.Sprintf("user%d@x.com", u), &recordingSink{})
			_, dup := seen[id]
			require.False(t, dup, "duplicate connection id %s", id)
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, 100)
	assert.Equal(t, 5, r.Users())
}

func TestConnectionCount_TracksRegisterAndUnregister(t *testing.T) {
	r := newTestRegistry(t)

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, r.Register("a@x.com", &recordingSink{}))
	}
	assert.Equal(t, 5, r.ConnectionCount("a@x.com"))

	r.Unregister("a@x.com", ids[0])
	r.Unregister("a@x.com", ids[3])
	assert.Equal(t, 3, r.ConnectionCount("a@x.com"))
}

func TestUnregister_LastConnectionRemovesUser(t *testing.T) {
	r := newTestRegistry(t)
	sink := &recordingSink{}

	id := r.Register("a@x.com", sink)
	r.Unregister("a@x.com", id)

	assert.Equal(t, 0, r.ConnectionCount("a@x.com"))
	assert.Equal(t, 0, r.Users())
	assert.Empty(t, r.Snapshot())

	ok, err := r.SendNotification(context.Background(), "a@x.com", map[string]string{"title": "late"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sink.Frames())
}

func TestUserKey_IsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t)

	id := r.Register("Foo@Bar.com", &recordingSink{})
	r.Register("  foo@bar.COM ", &recordingSink{})

	assert.Equal(t, 2, r.ConnectionCount("foo@bar.com"))
	assert.Equal(t, r.ConnectionCount("Foo@Bar.com"), r.ConnectionCount("FOO@BAR.COM"))
	assert.Equal(t, 1, r.Users())

	r.Unregister("FOO@bar.com", id)
	assert.Equal(t, 1, r.ConnectionCount("foo@bar.com"))
}

func TestUnregister_UnknownIsNoop(t *testing.T) {
	r := newTestRegistry(t)

	assert.NotPanics(t, func() { r.Unregister("ghost@x.com", "nope") })
	assert.Equal(t, 0, r.Users())

	id := r.Register("a@x.com", &recordingSink{})
	before := r.Snapshot()

	r.Unregister("a@x.com", "not-"+id)
	r.Unregister("b@x.com", id)

	assert.Equal(t, before, r.Snapshot())
	assert.Equal(t, 1, r.ConnectionCount("a@x.com"))
}

func TestUnregister_Twice(t *testing.T) {
	r := newTestRegistry(t)
	id := r.Register("a@x.com", &recordingSink{})
	keep := r.Register("a@x.com", &recordingSink{})

	r.Unregister("a@x.com", id)
	r.Unregister("a@x.com", id)

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Connections, 1)
	assert.Equal(t, keep, snap[0].Connections[0].ID)
}

func TestObserver_SeesFirstAndLastConnection(t *testing.T) {
	obs := &transitions{}
	r := newTestRegistry(t, WithObserver(obs))

	id1 := r.Register("A@x.com", &recordingSink{})
	id2 := r.Register("a@x.com", &recordingSink{})
	r.Unregister("a@x.com", id1)
	assert.Equal(t, []string{"online:a@x.com"}, obs.Events())

	r.Unregister("a@x.com", id2)
	assert.Equal(t, []string{"online:a@x.com", "offline:a@x.com"}, obs.Events())
}

func TestSnapshot_OrderedByUserThenCreation(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(10-tick) * time.Second)
	}
	n := 0
	gen := func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}
	r := newTestRegistry(t, WithClock(clock), WithIDGenerator(gen))

	r.Register("zed@x.com", &recordingSink{})
	r.Register("amy@x.com", &recordingSink{})
	r.Register("amy@x.com", &recordingSink{})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "amy@x.com", snap[0].UserKey)
	assert.Equal(t, "zed@x.com", snap[1].UserKey)

	// c3 was created last but the clock runs backwards
	require.Len(t, snap[0].Connections, 2)
	assert.Equal(t, "c3", snap[0].Connections[0].ID)
	assert.Equal(t, "c2", snap[0].Connections[1].ID)
	assert.Equal(t, base.Add(7*time.Second), snap[0].Connections[0].CreatedAt)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("User%d@x.com", w%3)
			for i := 0; i < 50; i++ {
				id := r.Register(user, &recordingSink{})
				_, _ = r.SendNotification(ctx, user, map[string]int{"i": i})
				r.UpdateUnreadCount(ctx, user, i)
				_ = r.ConnectionCount(user)
				r.Unregister(user, id)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Users())
	assert.Empty(t, r.Snapshot())
}

type closingSink struct {
	recordingSink
	closed bool
}

func (s *closingSink) Close() { s.closed = true }

func TestCloseAll_EmptiesAndClosesSinks(t *testing.T) {
	obs := &transitions{}
	r := newTestRegistry(t, WithObserver(obs))
	closer := &closingSink{}
	id := r.Register("a@x.com", closer)
	r.Register("b@x.com", &recordingSink{})

	r.CloseAll()

	assert.True(t, closer.closed)
	assert.Equal(t, 0, r.Users())
	assert.ElementsMatch(t, []string{"online:a@x.com", "online:b@x.com", "offline:a@x.com", "offline:b@x.com"}, obs.Events())

	r.Unregister("a@x.com", id)
	assert.Equal(t, 0, r.ConnectionCount("a@x.com"))
}

func TestUserKeys(t *testing.T) {
	r := newTestRegistry(t)
	assert.Empty(t, r.UserKeys())

	r.Register("B@x.com", &recordingSink{})
	id := r.Register("a@x.com", &recordingSink{})
	assert.ElementsMatch(t, []string{"a@x.com", "b@x.com"}, r.UserKeys())

	r.Unregister("a@x.com", id)
	assert.Equal(t, []string{"b@x.com"}, r.UserKeys())
}
