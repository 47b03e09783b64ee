package bot_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-talkbot/pkg/testutil"
	"github.com/lightforgemedia/go-talkbot/pkg/transport"
	"github.com/lightforgemedia/go-talkbot/pkg/ttevent"
)

func TestVoiceStateTogglesAudioDelivery(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, _ := loggedInSession(t, fake)
	runBot(t, b)

	fake.PushJSON(ttevent.CodeUserStateChange, 9, map[string]bool{"voice": true})
	testutil.RequireWithin(t, time.Second, "audio delivery enabled", func() bool {
		return fake.CallCount("EnableAudioEvents(9,true)") == 1
	})

	fake.PushJSON(ttevent.CodeUserStateChange, 9, map[string]bool{"voice": false})
	testutil.RequireWithin(t, time.Second, "audio delivery disabled", func() bool {
		return fake.CallCount("EnableAudioEvents(9,false)") == 1
	})
}

func TestUserAudioBlockCopiedAndReleased(t *testing.T) {
	fake := testutil.NewFakeConn()
	fake.AudioBlocks = map[int][]byte{9: {1, 2, 3}}
	b, _ := loggedInSession(t, fake)

	blocks := make(chan ttevent.AudioRef, 1)
	require.NoError(t, b.On(ttevent.KindUserAudio, func(a ttevent.AudioRef) { blocks <- a }))
	runBot(t, b)

	fake.PushCode(ttevent.CodeUserAudioBlock, 9)

	select {
	case a := <-blocks:
		assert.Equal(t, 9, a.Source)
		assert.Equal(t, []byte{1, 2, 3}, a.Data)
	case <-time.After(time.Second):
		t.Fatal("audio block never dispatched")
	}
	assert.Equal(t, 1, fake.CallCount("ReleaseAudioBlock(9)"))
}

func TestMuxedAudioBlockDispatchedSeparately(t *testing.T) {
	fake := testutil.NewFakeConn()
	fake.AudioBlocks = map[int][]byte{transport.MuxedSourceID: {7}}
	b, _ := loggedInSession(t, fake)

	blocks := make(chan ttevent.AudioRef, 1)
	require.NoError(t, b.On(ttevent.KindMuxedAudio, func(a ttevent.AudioRef) { blocks <- a }))
	runBot(t, b)

	fake.PushCode(ttevent.CodeUserAudioBlock, transport.MuxedSourceID)

	select {
	case a := <-blocks:
		assert.Equal(t, transport.MuxedSourceID, a.Source)
	case <-time.After(time.Second):
		t.Fatal("muxed block never dispatched")
	}
}

func TestUserJoinCarriesUserAndChannel(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, _ := loggedInSession(t, fake)

	type joined struct {
		user ttevent.UserRef
		ch   ttevent.ChannelRef
	}
	joins := make(chan joined, 1)
	require.NoError(t, b.On(ttevent.KindUserJoin, func(u ttevent.UserRef, c ttevent.ChannelRef) {
		joins <- joined{u, c}
	}))
	runBot(t, b)

	fake.PushJSON(ttevent.CodeCmdUserJoined, 2, map[string]int{"user_id": 4, "channel_id": 2})

	select {
	case j := <-joins:
		assert.Equal(t, 4, j.user.UserID())
		assert.Equal(t, 2, j.ch.ID)
	case <-time.After(time.Second):
		t.Fatal("join never dispatched")
	}
}

func TestOwnJoinEnablesMuxedStream(t *testing.T) {
	fake := testutil.NewFakeConn()
	fake.UserID = 1
	b, _ := loggedInSession(t, fake)
	runBot(t, b)

	fake.PushJSON(ttevent.CodeCmdUserJoined, 2, map[string]int{"user_id": 1, "channel_id": 2})
	testutil.RequireWithin(t, time.Second, "muxed stream enabled", func() bool {
		return fake.CallCount("EnableAudioEvents(-2,true)") == 1
	})

	fake.PushJSON(ttevent.CodeCmdUserLeft, 2, map[string]int{"user_id": 1})
	testutil.RequireWithin(t, time.Second, "muxed stream disabled", func() bool {
		return fake.CallCount("EnableAudioEvents(-2,false)") == 1
	})
}

func TestTextMessageDispatched(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, _ := loggedInSession(t, fake)

	msgs := make(chan ttevent.MessageRef, 1)
	require.NoError(t, b.On(ttevent.KindMessage, func(m ttevent.MessageRef) { msgs <- m }))
	runBot(t, b)

	fake.PushJSON(ttevent.CodeCmdUserTextMsg, 4, map[string]string{"text": "hello"})

	select {
	case m := <-msgs:
		assert.Contains(t, string(m.Raw), "hello")
	case <-time.After(time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestEnumerationRepliesAreNotDispatched(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, _ := loggedInSession(t, fake)

	dispatched := make(chan struct{}, 1)
	require.NoError(t, b.On(ttevent.KindUserAccountNew, func(ttevent.AccountRef) {
		dispatched <- struct{}{}
	}))
	runBot(t, b)

	fake.PushJSON(ttevent.CodeCmdUserAccount, 0, map[string]string{"username": "alice"})

	select {
	case <-dispatched:
		t.Fatal("enumeration reply reached a user handler")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTapReceivesRawEvents(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, _ := loggedInSession(t, fake)

	tap := b.TapEvents(ttevent.CodeCmdUserTextMsg)
	defer b.Untap(tap, ttevent.CodeCmdUserTextMsg)
	runBot(t, b)

	fake.PushJSON(ttevent.CodeCmdUserTextMsg, 4, map[string]string{"text": "tapped"})

	select {
	case v := <-tap:
		ev, ok := v.(ttevent.Event)
		require.True(t, ok)
		assert.Equal(t, ttevent.CodeCmdUserTextMsg, ev.Code)
	case <-time.After(time.Second):
		t.Fatal("tap never received the event")
	}
}

func TestDeadHandleTreatedAsConnectionLoss(t *testing.T) {
	fake := testutil.NewFakeConn()
	b, s := loggedInSession(t, fake)

	lost := make(chan struct{}, 1)
	require.NoError(t, b.On(ttevent.KindConnectionLost, func(ttevent.ServerRef) {
		lost <- struct{}{}
	}))
	runBot(t, b)

	require.NoError(t, fake.Close())

	select {
	case <-lost:
	case <-time.After(time.Second):
		t.Fatal("dead handle never surfaced as connection loss")
	}
	testutil.RequireWithin(t, time.Second, "state flags cleared", func() bool {
		return !s.Connected() && !s.LoggedIn()
	})
}
