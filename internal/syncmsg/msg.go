// Package syncmsg defines the events exchanged between peers.
// Paths inside messages are always root-relative and forward-slash separated.
package syncmsg

import (
	"github.com/openmined/treesync/internal/utils"
)

const IdSize = 3

// Message is the tagged union carried on the wire. Data holds a pointer to
// the payload matching Type: *Sync, *FileWrite (create/modify), *FileDelete or *FileMove.
type Message struct {
	Id   string
	Type MessageType
	Data any
}

// Paths returns the relative paths a message touches, for logging.
func (m *Message) Paths() []string {
	switch d := m.Data.(type) {
	case *Sync:
		paths := make([]string, 0, len(d.Files))
		for p := range d.Files {
			paths = append(paths, p)
		}
		return paths
	case *FileWrite:
		return []string{d.Path}
	case *FileDelete:
		return []string{d.Path}
	case *FileMove:
		return []string{d.OldPath, d.NewPath}
	default:
		return nil
	}
}

func generateID() string {
	return utils.TokenHex(IdSize)
}
