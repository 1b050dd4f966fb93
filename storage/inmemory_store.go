package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const UpdateBufferSize = 255

// InmemoryStore keeps a single JSON document in memory. Keys are gjson/sjson
// paths into that document.
type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	listenMu    sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop     chan struct{}
	stopOnce sync.Once
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte("{}"),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
	}
}

func (i *InmemoryStore) Close() error {
	i.stopOnce.Do(func() {
		close(i.stop)

		i.listenMu.Lock()
		defer i.listenMu.Unlock()

		for _, updateChan := range i.updateChans {
			close(updateChan)
		}
		i.updateChans = nil
	})

	return nil
}

// Set stores value under key. json.RawMessage values are stored as-is,
// anything else is encoded to JSON first.
func (i *InmemoryStore) Set(ctx context.Context, key string, value interface{}) (err error) {
	if !i.isRunning() {
		return ErrClosed
	}

	i.mu.Lock()
	switch v := value.(type) {
	case json.RawMessage:
		if !gjson.ValidBytes(v) {
			i.mu.Unlock()
			return ErrInvalidJSON
		}
		i.values, err = sjson.SetRawBytes(i.values, key, v)

	default:
		i.values, err = sjson.SetBytes(i.values, key, value)
	}

	if err != nil {
		i.mu.Unlock()
		return err
	}

	update := &Update{
		Key:   key,
		Value: []byte(gjson.GetBytes(i.values, key).Raw),
	}
	i.mu.Unlock()

	i.publish(ctx, update)

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, key)
	if !result.Exists() {
		return nil, ErrNotFound
	}

	// Copy, the document may be rewritten by the next Set
	return []byte(result.Raw), nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.listenMu.Lock()
	defer i.listenMu.Unlock()

	updateChan := make(chan *Update, UpdateBufferSize)

	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidJSON
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte(nil), values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte(nil), i.values...), nil
}

func (i *InmemoryStore) publish(ctx context.Context, update *Update) {
	i.listenMu.Lock()
	defer i.listenMu.Unlock()

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		case <-ctx.Done():
			return
		case <-i.stop:
			return
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
