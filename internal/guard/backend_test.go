package guard

import (
	"context"
	"sync"

	"warden/internal/txn"
)

// txnRecordingBackend counts lifecycle transitions and can inject failures
// at begin or commit.
type txnRecordingBackend struct {
	mu         sync.Mutex
	begun      int
	committed  int
	rolledBack int

	failBegin  error
	failCommit error
}

func newTxnRecordingBackend() *txnRecordingBackend {
	return &txnRecordingBackend{}
}

func (b *txnRecordingBackend) Begin(context.Context) (txn.Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failBegin != nil {
		return nil, b.failBegin
	}
	b.begun++
	return &recordingTx{backend: b}, nil
}

func (b *txnRecordingBackend) Counts() (begun, committed, rolledBack int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begun, b.committed, b.rolledBack
}

type recordingTx struct {
	backend *txnRecordingBackend
}

func (t *recordingTx) Commit() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	if t.backend.failCommit != nil {
		return t.backend.failCommit
	}
	t.backend.committed++
	return nil
}

func (t *recordingTx) Rollback() error {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	t.backend.rolledBack++
	return nil
}

type recordingTxKey struct{}

func (t *recordingTx) Inject(ctx context.Context) context.Context {
	return context.WithValue(ctx, recordingTxKey{}, t)
}

// txnFromContext extracts the recording transaction injected by Begin.
func txnFromContext(ctx context.Context) (*recordingTx, bool) {
	tx, ok := ctx.Value(recordingTxKey{}).(*recordingTx)
	return tx, ok
}
