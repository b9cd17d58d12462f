package syncmsg

// FileWrite carries the full contents of a created or modified file.
type FileWrite struct {
	Path     string `msgpack:"pth"`
	Contents []byte `msgpack:"con"`
}

type FileDelete struct {
	Path string `msgpack:"pth"`
}

type FileMove struct {
	OldPath string `msgpack:"old"`
	NewPath string `msgpack:"new"`
}

func NewFileCreate(path string, contents []byte) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileCreate,
		Data: &FileWrite{
			Path:     path,
			Contents: contents,
		},
	}
}

func NewFileModify(path string, contents []byte) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileModify,
		Data: &FileWrite{
			Path:     path,
			Contents: contents,
		},
	}
}

func NewFileDelete(path string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileDelete,
		Data: &FileDelete{
			Path: path,
		},
	}
}

func NewFileMove(oldPath, newPath string) *Message {
	return &Message{
		Id:   generateID(),
		Type: MsgFileMove,
		Data: &FileMove{
			OldPath: oldPath,
			NewPath: newPath,
		},
	}
}
