package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/treesync/internal/lister"
	"github.com/openmined/treesync/internal/notifier"
	"github.com/openmined/treesync/internal/session"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/utils"
	"github.com/openmined/treesync/internal/watchstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type testServer struct {
	*Server
	root string
}

func startServer(t *testing.T, files map[string]string) *testServer {
	t.Helper()

	root, err := utils.ResolveDir(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	n, err := notifier.New(notifier.BackendNotify, root)
	require.NoError(t, err)

	state, err := watchstate.New(root, n, lister.NewWalker())
	require.NoError(t, err)

	srv := New(&Config{Addr: "127.0.0.1:0", QueueSize: 16}, state)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("server did not stop")
		}
		n.Close()
	})

	return &testServer{Server: srv, root: root}
}

type rawPeer struct {
	conn *session.Conn
	msgs chan *syncmsg.Message
}

func dialRaw(t *testing.T, srv *testServer) *rawPeer {
	t.Helper()

	conn, err := session.Dial(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	p := &rawPeer{conn: conn, msgs: make(chan *syncmsg.Message, 64)}
	go func() {
		_ = conn.ReadLoop(context.Background(), func(m *syncmsg.Message) { p.msgs <- m })
		close(p.msgs)
	}()
	return p
}

func (p *rawPeer) next(t *testing.T) *syncmsg.Message {
	t.Helper()
	select {
	case msg, ok := <-p.msgs:
		require.True(t, ok, "connection closed")
		return msg
	case <-time.After(waitFor):
		t.Fatal("no message received")
		return nil
	}
}

func (p *rawPeer) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg, ok := <-p.msgs:
		if ok {
			t.Fatalf("unexpected message %s %v", msg.Type, msg.Paths())
		}
	case <-time.After(d):
	}
}

func fileContent(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func TestServer_EmptySnapshot(t *testing.T) {
	srv := startServer(t, nil)
	peer := dialRaw(t, srv)

	msg := peer.next(t)
	require.Equal(t, syncmsg.MsgSync, msg.Type)
	assert.Empty(t, msg.Data.(*syncmsg.Sync).Files)
}

func TestServer_SnapshotContents(t *testing.T) {
	srv := startServer(t, map[string]string{
		"a.txt":       "hello",
		"dir/b.bin":   "\x00\x01",
		".git/HEAD":   "ref",
		"scratch.swp": "x",
	})
	peer := dialRaw(t, srv)

	msg := peer.next(t)
	require.Equal(t, syncmsg.MsgSync, msg.Type)
	assert.Equal(t, map[string][]byte{
		"a.txt":     []byte("hello"),
		"dir/b.bin": {0, 1},
	}, msg.Data.(*syncmsg.Sync).Files)
}

func TestServer_BroadcastsLocalChanges(t *testing.T) {
	srv := startServer(t, nil)
	peer := dialRaw(t, srv)
	peer.next(t) // snapshot

	require.NoError(t, os.WriteFile(filepath.Join(srv.root, "b.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		select {
		case msg := <-peer.msgs:
			fw, ok := msg.Data.(*syncmsg.FileWrite)
			return ok && fw.Path == "b.txt" && string(fw.Contents) == "x"
		default:
			return false
		}
	}, waitFor, 10*time.Millisecond)
}

func TestServer_RelaysBetweenPeers(t *testing.T) {
	srv := startServer(t, nil)
	a := dialRaw(t, srv)
	b := dialRaw(t, srv)
	a.next(t)
	b.next(t)

	require.Eventually(t, func() bool { return srv.Stats().PeersConnected == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, a.conn.WriteMessage(syncmsg.NewFileCreate("from-a.txt", []byte("A"))))

	msg := b.next(t)
	assert.Equal(t, syncmsg.MsgFileCreate, msg.Type)
	assert.Equal(t, &syncmsg.FileWrite{Path: "from-a.txt", Contents: []byte("A")}, msg.Data)
	assert.Equal(t, "A", fileContent(filepath.Join(srv.root, "from-a.txt")))

	// neither the origin nor b sees the server's own echo
	a.expectNone(t, time.Second)
	b.expectNone(t, 100*time.Millisecond)

	stats := srv.Stats()
	assert.EqualValues(t, 1, stats.FramesIn)
	assert.GreaterOrEqual(t, stats.FramesOut, uint64(3))
}

func TestServer_IgnoresSyncFromPeer(t *testing.T) {
	srv := startServer(t, nil)
	a := dialRaw(t, srv)
	b := dialRaw(t, srv)
	a.next(t)
	b.next(t)

	require.NoError(t, a.conn.WriteMessage(syncmsg.NewSync(map[string][]byte{"evil.txt": []byte("x")})))
	require.NoError(t, a.conn.WriteMessage(syncmsg.NewFileCreate("good.txt", []byte("g"))))

	msg := b.next(t)
	assert.Equal(t, "good.txt", msg.Data.(*syncmsg.FileWrite).Path)
	assert.NoFileExists(t, filepath.Join(srv.root, "evil.txt"))
	assert.Equal(t, "g", fileContent(filepath.Join(srv.root, "good.txt")))
}

func TestServer_RejectsEscapingPaths(t *testing.T) {
	srv := startServer(t, nil)
	a := dialRaw(t, srv)
	b := dialRaw(t, srv)
	a.next(t)
	b.next(t)

	require.NoError(t, a.conn.WriteMessage(syncmsg.NewFileCreate("../outside.txt", []byte("x"))))
	b.expectNone(t, 500*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(srv.root), "outside.txt"))
}

func TestServer_PeerDisconnect(t *testing.T) {
	srv := startServer(t, nil)
	a := dialRaw(t, srv)
	a.next(t)

	require.Eventually(t, func() bool { return srv.Stats().PeersConnected == 1 }, waitFor, 10*time.Millisecond)
	require.NoError(t, a.conn.Close())
	require.Eventually(t, func() bool { return srv.Stats().PeersConnected == 0 }, waitFor, 10*time.Millisecond)
}
