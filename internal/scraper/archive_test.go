package scraper

import (
	"context"
	"sync"
)

// pageArchive is an in-memory Archiver for tests.
type pageArchive struct {
	mu    sync.Mutex
	pages map[string][]byte
}

func newPageArchive() *pageArchive {
	return &pageArchive{pages: make(map[string][]byte)}
}

func (a *pageArchive) Archive(_ context.Context, name string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages[name] = append([]byte(nil), body...)
	return "memory://" + name, nil
}

func (a *pageArchive) page(name string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body, ok := a.pages[name]
	return body, ok
}

func (a *pageArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}
