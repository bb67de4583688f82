package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/insight-ai/insight-go/internal/prefs"
	"github.com/insight-ai/insight-go/internal/schema"
)

// playingFunc reports whether the audio of a message is playing.
type playingFunc func(schema.MessageID) bool

func printMessage(w io.Writer, m schema.Message, playing playingFunc) {
	author := "you"
	if m.Type == schema.MessageTypeAssistant {
		author = "assistant"
	}

	prefix := ""
	if m.ID != "" {
		prefix = fmt.Sprintf("[%s] ", m.ID)
	}

	text := m.Text
	if text == "" && m.EncodedImage != "" {
		text = "(screenshot)"
	}

	suffix := ""
	if m.HasAudio() {
		if playing != nil && m.ID != "" && playing(m.ID) {
			suffix += " ▶"
		} else {
			suffix += " ♪"
		}
	}
	if m.Feedback != nil && *m.Feedback != schema.FeedbackNeutral {
		suffix += fmt.Sprintf(" (%s)", *m.Feedback)
	}

	fmt.Fprintf(w, "%s%s: %s%s\n", prefix, author, text, suffix)
}

func printHistory(w io.Writer, msgs []schema.Message, playing playingFunc) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet")
		return
	}
	for _, m := range msgs {
		printMessage(w, m, playing)
	}
}

func printPrefs(w io.Writer, p prefs.Preferences) {
	fmt.Fprintf(w, "muted: %t\n", p.Muted)
	fmt.Fprintf(w, "voice: %s\n", p.Voice)
	fmt.Fprintf(w, "speed: %g\n", p.Speed)
}

// lockedWriter serializes writes from the command loop, background sends and
// the notifier.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
