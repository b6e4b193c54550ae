package mqtt

import (
	"context"
	"sync"
)

type message struct {
	topic   string
	payload []byte
	retain  bool
}

// fakeClient records publishes in memory.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	messages   []message
	disconnect int
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	f.messages = append(f.messages, message{topic: topic, payload: append([]byte(nil), payload...), retain: retain})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnect++
}

func (f *fakeClient) published(topic string) []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []message
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
