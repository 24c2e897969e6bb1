package core

import (
	"fmt"
	"time"

	"github.com/vovakirdan/streamchat/internal/proto"
)

// Message is a chat line as it travels through the hub.
type Message struct {
	From      string
	Text      string
	CreatedAt time.Time
	// Private marks a whisper.
	Private bool
}

// String renders the line the way peers receive it.
func (m Message) String() string {
	line := fmt.Sprintf("[%s](%s): %s", m.From, m.CreatedAt.Format(proto.TimeLayout), m.Text)
	if m.Private {
		return proto.TagWhisper + line
	}
	return line
}
