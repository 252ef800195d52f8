package subreddit

import "sync"

// nameLocker はサブレディット名単位の排他制御を提供する。
// 同一エンティティへの並行同期を直列化し、重複した上流フェッチを防ぐ。
// 異なる名前同士はブロックしない。
type nameLocker struct {
	mu    sync.Mutex
	locks map[string]*nameLock
}

type nameLock struct {
	mu   sync.Mutex
	refs int
}

func newNameLocker() *nameLocker {
	return &nameLocker{locks: make(map[string]*nameLock)}
}

// lock は指定された名前のロックを取得する。
func (l *nameLocker) lock(name string) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &nameLock{}
		l.locks[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// unlock は指定された名前のロックを解放する。
// 待機者がいなくなったエントリはマップから削除しメモリリークを防ぐ。
func (l *nameLocker) unlock(name string) {
	l.mu.Lock()
	entry, ok := l.locks[name]
	if !ok {
		l.mu.Unlock()
		panic("subreddit: unlock of unheld name lock")
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
