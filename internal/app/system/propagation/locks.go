package propagation

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// userLocks serialises runs for the same user within one process.
type userLocks struct {
	mu sync.Mutex
	m  map[primitive.ObjectID]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[primitive.ObjectID]*userLock)}
}

// acquire blocks until the user's lock is held or ctx is done. The returned
// func releases it.
func (l *userLocks) acquire(ctx context.Context, id primitive.ObjectID) (func(), error) {
	l.mu.Lock()
	e, ok := l.m[id]
	if !ok {
		e = &userLock{ch: make(chan struct{}, 1)}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(id, e)
		return nil, ctx.Err()
	}
	return func() {
		<-e.ch
		l.drop(id, e)
	}, nil
}

func (l *userLocks) drop(id primitive.ObjectID, e *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.m, id)
	}
}
