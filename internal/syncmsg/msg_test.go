package syncmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "SYNC", MsgSync.String())
	assert.Equal(t, "FILE_CREATE", MsgFileCreate.String())
	assert.Equal(t, "FILE_MODIFY", MsgFileModify.String())
	assert.Equal(t, "FILE_DELETE", MsgFileDelete.String())
	assert.Equal(t, "FILE_MOVE", MsgFileMove.String())
	assert.Equal(t, "???(42)", MessageType(42).String())
}

func TestConstructors(t *testing.T) {
	create := NewFileCreate("a/b.txt", []byte("x"))
	assert.Equal(t, MsgFileCreate, create.Type)
	assert.Len(t, create.Id, IdSize*2)
	fw, ok := create.Data.(*FileWrite)
	require.True(t, ok)
	assert.Equal(t, "a/b.txt", fw.Path)

	modify := NewFileModify("c.txt", nil)
	assert.Equal(t, MsgFileModify, modify.Type)
	assert.Equal(t, []string{"c.txt"}, modify.Paths())

	del := NewFileDelete("d.txt")
	assert.Equal(t, MsgFileDelete, del.Type)
	assert.Equal(t, []string{"d.txt"}, del.Paths())

	move := NewFileMove("old.txt", "new/name.txt")
	assert.Equal(t, MsgFileMove, move.Type)
	assert.Equal(t, []string{"old.txt", "new/name.txt"}, move.Paths())

	assert.NotEqual(t, create.Id, modify.Id)
}

func TestNewSync_NilFiles(t *testing.T) {
	msg := NewSync(nil)
	sync, ok := msg.Data.(*Sync)
	require.True(t, ok)
	assert.NotNil(t, sync.Files)
	assert.Empty(t, sync.Files)
	assert.Empty(t, msg.Paths())

	msg = NewSync(map[string][]byte{"a.txt": []byte("hello")})
	assert.Equal(t, []string{"a.txt"}, msg.Paths())
}
