package session

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/wireproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipe(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := New(a), New(b)
	t.Cleanup(func() {
		ca.Close()
		cb.Close()
	})
	return ca, cb
}

func TestConn_WriteRead(t *testing.T) {
	a, b := pipe(t)
	assert.NotEqual(t, a.Id, b.Id)
	assert.Len(t, a.Id, 8)

	sent := syncmsg.NewFileCreate("dir/a.txt", []byte("hello"))
	go func() {
		assert.NoError(t, a.WriteMessage(sent))
	}()

	got, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}

func TestConn_ConcurrentWritesStayFramed(t *testing.T) {
	a, b := pipe(t)

	const writers, perWriter = 4, 25
	for w := 0; w < writers; w++ {
		go func() {
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, a.WriteMessage(syncmsg.NewFileModify("f", make([]byte, 1024))))
			}
		}()
	}

	for i := 0; i < writers*perWriter; i++ {
		msg, err := b.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, syncmsg.MsgFileModify, msg.Type)
	}
}

func TestConn_ReadLoop(t *testing.T) {
	a, b := pipe(t)

	got := make(chan *syncmsg.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- b.ReadLoop(context.Background(), func(m *syncmsg.Message) { got <- m })
	}()

	require.NoError(t, a.WriteMessage(syncmsg.NewFileDelete("x")))

	// garbage payload: valid frame, bad envelope
	bad := []byte{0, 0, 0, 3, 'b', 'a', 'd'}
	require.NoError(t, a.WriteFrame(bad))

	require.NoError(t, a.WriteMessage(syncmsg.NewFileDelete("y")))

	assert.Equal(t, "x", (<-got).Data.(*syncmsg.FileDelete).Path)
	assert.Equal(t, "y", (<-got).Data.(*syncmsg.FileDelete).Path)

	require.NoError(t, a.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not return")
	}
}

func TestConn_ReadLoopTruncatedFrame(t *testing.T) {
	a, b := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- b.ReadLoop(context.Background(), func(*syncmsg.Message) {})
	}()

	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, 100)
	require.NoError(t, a.WriteFrame(append(hdr, 1, 2, 3)))
	require.NoError(t, a.Close())

	err := <-done
	assert.True(t, wireproto.IsDisconnect(err))
}

func TestConn_ReadLoopContextCancel(t *testing.T) {
	_, b := pipe(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.ReadLoop(ctx, func(*syncmsg.Message) {})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read loop ignored cancellation")
	}
}

func TestConn_WriteAfterClose(t *testing.T) {
	a, _ := pipe(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	err := a.WriteMessage(syncmsg.NewFileDelete("x"))
	assert.True(t, wireproto.IsDisconnect(err))
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		nc, err := ln.Accept()
		if err == nil {
			accepted <- nc
		}
	}()

	c, err := Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	srv := New(<-accepted)
	defer srv.Close()

	require.NoError(t, srv.WriteMessage(syncmsg.NewSync(nil)))
	msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, syncmsg.MsgSync, msg.Type)
	assert.Empty(t, msg.Data.(*syncmsg.Sync).Files)
}
