package tracking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchwatch/internal/riot"
	"matchwatch/internal/storage"
	"matchwatch/internal/transport"
	logx "matchwatch/pkg/logx"
)

type fakeResolver struct {
	ids   map[string]string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(ctx context.Context, displayID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.ids[displayID]
	if !ok {
		return "", riot.ErrNotFound
	}
	return id, nil
}

type fakeChats struct{ unreachable map[int64]bool }

func (f fakeChats) ResolveChat(ctx context.Context, to transport.ChatTarget) error {
	if f.unreachable[to.ChatID] {
		return transport.ErrChatUnreachable
	}
	return nil
}

func newCommands(t *testing.T) (*Commands, *fakeResolver, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	res := &fakeResolver{ids: map[string]string{"Ava#EUW": "p-ava", "Bo#NA1": "p-bo"}}
	chats := fakeChats{unreachable: map[int64]bool{-999: true}}
	return NewCommands(NewStore(mem, logx.Nop()), res, chats, logx.Nop()), res, mem
}

func TestTrack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, res, mem := newCommands(t)

	got, err := c.Track(ctx, "T", "Ava")
	require.NoError(t, err)
	assert.Equal(t, TrackInvalid, got, "missing tagline")
	assert.Zero(t, res.calls, "invalid input never reaches upstream")

	got, err = c.Track(ctx, "T", "Ava#EUW")
	require.NoError(t, err)
	assert.Equal(t, TrackOK, got)
	assert.Equal(t, 1, mem.Saves())
	assert.Equal(t, "p-ava", c.store.Get("T").Entities["Ava#EUW"].InternalID)

	got, err = c.Track(ctx, "T", "Ava#EUW")
	require.NoError(t, err)
	assert.Equal(t, TrackAlready, got)

	got, err = c.Track(ctx, "T", "Nobody#EUW")
	require.NoError(t, err)
	assert.Equal(t, TrackNotFound, got)
	assert.NotContains(t, c.store.Get("T").Entities, "Nobody#EUW")

	got, err = c.Track(ctx, "U", "Ava#EUW")
	require.NoError(t, err)
	assert.Equal(t, TrackOK, got, "tenants track independently")
}

func TestTrackUpstreamFailure(t *testing.T) {
	t.Parallel()
	c, res, _ := newCommands(t)
	res.err = &riot.StatusError{Op: "account.by-riot-id", StatusCode: 503}
	got, err := c.Track(context.Background(), "T", "Ava#EUW")
	require.Error(t, err)
	assert.Equal(t, TrackInvalid, got)
	assert.Empty(t, c.List("T"))
}

func TestTrackReturnsSaveError(t *testing.T) {
	t.Parallel()
	c, _, mem := newCommands(t)
	mem.FailSave = errors.New("disk full")
	got, err := c.Track(context.Background(), "T", "Ava#EUW")
	assert.Equal(t, TrackOK, got)
	var we *StoreWriteError
	assert.ErrorAs(t, err, &we)
}

func TestUntrackAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newCommands(t)
	var forgotten []string
	c.OnUntrack(func(tenant, displayID string) { forgotten = append(forgotten, tenant+"/"+displayID) })
	_, _ = c.Track(ctx, "T", "Bo#NA1")
	_, _ = c.Track(ctx, "T", "Ava#EUW")
	assert.Equal(t, []string{"Ava#EUW", "Bo#NA1"}, c.List("T"))

	got, err := c.Untrack(ctx, "T", "Ava#EUW")
	require.NoError(t, err)
	assert.Equal(t, UntrackOK, got)
	got, err = c.Untrack(ctx, "T", "Ava#EUW")
	require.NoError(t, err)
	assert.Equal(t, UntrackNotTracked, got)
	assert.Equal(t, []string{"Bo#NA1"}, c.List("T"))
	assert.Empty(t, c.List("other"))
	assert.Equal(t, []string{"T/Ava#EUW"}, forgotten, "only a removed entity is forgotten")
}

func TestSetDestination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, mem := newCommands(t)

	for _, ref := range []string{"", "general", "-100:x", "-999"} {
		got, err := c.SetDestination(ctx, "T", ref)
		require.NoError(t, err)
		assert.Equal(t, DestinationInvalid, got, ref)
	}
	assert.Zero(t, mem.Saves())
	assert.Empty(t, c.Destination("T"))

	got, err := c.SetDestination(ctx, "T", " -100123:7 ")
	require.NoError(t, err)
	assert.Equal(t, DestinationOK, got)
	assert.Equal(t, "-100123:7", c.Destination("T"))
	assert.Equal(t, 1, mem.Saves())
}

func TestTrackResultString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ok", TrackOK.String())
	assert.Equal(t, "not_found", TrackNotFound.String())
	assert.Equal(t, "invalid", TrackInvalid.String())
}
