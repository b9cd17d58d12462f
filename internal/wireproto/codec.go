package wireproto

import (
	"errors"
	"fmt"

	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	magic0  = byte('T')
	magic1  = byte('S')
	version = byte(1)

	envelopeSize = 3
)

// ProtocolVersion is the envelope version this build writes and accepts.
const ProtocolVersion = int(version)

type wireMessage struct {
	Id   string              `msgpack:"id"`
	Type syncmsg.MessageType `msgpack:"typ"`
	Data msgpack.RawMessage  `msgpack:"dat"`
}

// Marshal encodes a message payload: [magic][magic][version][msgpack{id,typ,dat}].
// Data may be given as a pointer or a value of the payload type.
func Marshal(msg *syncmsg.Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("nil message")
	}

	var dat []byte
	var err error

	switch msg.Type {
	case syncmsg.MsgSync:
		switch v := msg.Data.(type) {
		case syncmsg.Sync:
			dat, err = msgpack.Marshal(&v)
		case *syncmsg.Sync:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid sync payload type: %T", msg.Data)
		}
	case syncmsg.MsgFileCreate, syncmsg.MsgFileModify:
		switch v := msg.Data.(type) {
		case syncmsg.FileWrite:
			dat, err = msgpack.Marshal(&v)
		case *syncmsg.FileWrite:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid file write payload type: %T", msg.Data)
		}
	case syncmsg.MsgFileDelete:
		switch v := msg.Data.(type) {
		case syncmsg.FileDelete:
			dat, err = msgpack.Marshal(&v)
		case *syncmsg.FileDelete:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid file delete payload type: %T", msg.Data)
		}
	case syncmsg.MsgFileMove:
		switch v := msg.Data.(type) {
		case syncmsg.FileMove:
			dat, err = msgpack.Marshal(&v)
		case *syncmsg.FileMove:
			dat, err = msgpack.Marshal(v)
		default:
			return nil, fmt.Errorf("invalid file move payload type: %T", msg.Data)
		}
	default:
		return nil, fmt.Errorf("unknown message type: %d", msg.Type)
	}
	if err != nil {
		return nil, err
	}

	body, err := msgpack.Marshal(&wireMessage{Id: msg.Id, Type: msg.Type, Data: dat})
	if err != nil {
		return nil, err
	}

	buf := make([]byte, envelopeSize+len(body))
	buf[0], buf[1], buf[2] = magic0, magic1, version
	copy(buf[envelopeSize:], body)
	return buf, nil
}

// Unmarshal decodes a payload produced by Marshal. Payload data is always
// returned as a pointer.
func Unmarshal(payload []byte) (*syncmsg.Message, error) {
	if len(payload) < envelopeSize || payload[0] != magic0 || payload[1] != magic1 {
		return nil, errors.New("payload missing TS envelope")
	}
	if payload[2] != version {
		return nil, fmt.Errorf("unsupported envelope version: %d", payload[2])
	}

	var w wireMessage
	if err := msgpack.Unmarshal(payload[envelopeSize:], &w); err != nil {
		return nil, err
	}

	msg := &syncmsg.Message{Id: w.Id, Type: w.Type}
	switch w.Type {
	case syncmsg.MsgSync:
		var sync syncmsg.Sync
		if err := msgpack.Unmarshal(w.Data, &sync); err != nil {
			return nil, err
		}
		if sync.Files == nil {
			sync.Files = map[string][]byte{}
		}
		msg.Data = &sync
	case syncmsg.MsgFileCreate, syncmsg.MsgFileModify:
		var fw syncmsg.FileWrite
		if err := msgpack.Unmarshal(w.Data, &fw); err != nil {
			return nil, err
		}
		msg.Data = &fw
	case syncmsg.MsgFileDelete:
		var fd syncmsg.FileDelete
		if err := msgpack.Unmarshal(w.Data, &fd); err != nil {
			return nil, err
		}
		msg.Data = &fd
	case syncmsg.MsgFileMove:
		var fm syncmsg.FileMove
		if err := msgpack.Unmarshal(w.Data, &fm); err != nil {
			return nil, err
		}
		msg.Data = &fm
	default:
		return nil, fmt.Errorf("unknown message type: %d", w.Type)
	}

	return msg, nil
}
