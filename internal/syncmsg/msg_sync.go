package syncmsg

// Sync is the full tree snapshot a server sends once per connection.
type Sync struct {
	Files map[string][]byte `msgpack:"files"`
}

func NewSync(files map[string][]byte) *Message {
	if files == nil {
		files = map[string][]byte{}
	}
	return &Message{
		Id:   generateID(),
		Type: MsgSync,
		Data: &Sync{
			Files: files,
		},
	}
}
