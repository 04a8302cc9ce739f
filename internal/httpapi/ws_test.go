package httpapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/aura/internal/protocol"
	"github.com/antoniostano/aura/internal/voice"
)

// stalledConn blocks every write until release is closed.
type stalledConn struct {
	writing chan struct{}
	release chan struct{}

	mu      sync.Mutex
	written []any
	closed  bool
	once    sync.Once
}

func newStalledConn() *stalledConn {
	return &stalledConn{writing: make(chan struct{}), release: make(chan struct{})}
}

func (c *stalledConn) WriteJSON(v any) error {
	c.once.Do(func() { close(c.writing) })
	<-c.release
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("use of closed connection")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (c *stalledConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stalledConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.written...)
}

func (c *stalledConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestWSLinkSendsDoNotWaitOnStalledWriter(t *testing.T) {
	conn := newStalledConn()
	link := newWSLink(conn, nil)
	defer link.close()

	sent := make(chan error, 1)
	go func() {
		ctx := context.Background()
		if err := link.SendCommand(ctx, voice.Command{Type: voice.CommandSpeechCancel}); err != nil {
			sent <- err
			return
		}
		<-conn.writing
		if err := link.SendCommand(ctx, voice.Command{Type: voice.CommandSpeak, Utterance: voice.Utterance{Text: "That sounds hard."}}); err != nil {
			sent <- err
			return
		}
		sent <- link.SendCommand(ctx, voice.Command{Type: voice.CommandSpeechCancel})
	}()

	select {
	case err := <-sent:
		if err != nil {
			t.Fatalf("SendCommand() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("SendCommand() blocked on a stalled writer")
	}

	close(conn.release)
	deadline := time.Now().Add(2 * time.Second)
	for len(conn.messages()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("written = %d messages, want 3", len(conn.messages()))
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := conn.messages()
	want := []protocol.MessageType{protocol.TypeSpeechCancel, protocol.TypeSpeak, protocol.TypeSpeechCancel}
	for i, msg := range got {
		if typ, _ := protocol.TypeOf(msg); typ != want[i] {
			t.Fatalf("message %d type = %q, want %q", i, typ, want[i])
		}
	}
}

func TestWSLinkDisconnectsWhenQueueFills(t *testing.T) {
	conn := newStalledConn()
	link := newWSLink(conn, nil)
	defer close(conn.release)

	cancel := protocol.SpeechCancel{Type: protocol.TypeSpeechCancel}
	if err := link.send(cancel); err != nil {
		t.Fatalf("send() error = %v", err)
	}
	<-conn.writing
	for i := 0; i < wsSendQueue; i++ {
		if err := link.send(cancel); err != nil {
			t.Fatalf("send(%d) error = %v", i, err)
		}
	}

	if err := link.send(cancel); !errors.Is(err, errSendBacklog) {
		t.Fatalf("send() on full queue error = %v, want errSendBacklog", err)
	}
	if !conn.isClosed() {
		t.Fatalf("connection should be closed after the queue filled")
	}
	if err := link.send(cancel); !errors.Is(err, voice.ErrDetached) {
		t.Fatalf("send() after close error = %v, want ErrDetached", err)
	}
}
