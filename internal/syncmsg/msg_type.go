package syncmsg

import "fmt"

type MessageType uint16

const (
	MsgSync MessageType = iota
	MsgFileCreate
	MsgFileModify
	MsgFileDelete
	MsgFileMove
)

func (t MessageType) String() string {
	switch t {
	case MsgSync:
		return "SYNC"
	case MsgFileCreate:
		return "FILE_CREATE"
	case MsgFileModify:
		return "FILE_MODIFY"
	case MsgFileDelete:
		return "FILE_DELETE"
	case MsgFileMove:
		return "FILE_MOVE"
	default:
		return fmt.Sprintf("???(%d)", t)
	}
}
