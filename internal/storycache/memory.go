package storycache

import (
	"context"
	"sync"
)

// MemoryBackend хранит записи в памяти процесса. Используется в тестах
// и как кэш без сохранения между запусками.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryBackend создает пустое хранилище в памяти.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load(ctx context.Context, userID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[userID]
	if !ok {
		return Record{}, false, nil
	}
	rec.Stories = append([]byte(nil), rec.Stories...)
	return rec, true, nil
}

func (b *MemoryBackend) Save(ctx context.Context, userID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec.Stories = append([]byte(nil), rec.Stories...)
	b.records[userID] = rec
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.records, userID)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

// NewMemory создает кэш в памяти.
func NewMemory() *Store {
	return New(NewMemoryBackend(), nil, nil)
}
