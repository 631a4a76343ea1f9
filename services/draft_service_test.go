package services

import (
	"sync"
	"testing"
	"time"

	"backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu    sync.Mutex
	notes []pendingNote
}

func (c *captureSink) persist(n pendingNote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
	return nil
}

func (c *captureSink) saved() []pendingNote {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pendingNote, len(c.notes))
	copy(out, c.notes)
	return out
}

func newTestSaver(delay time.Duration) (*NoteSaver, *captureSink) {
	sink := &captureSink{}
	s := NewNoteSaver(nil, delay)
	s.persist = sink.persist
	return s, sink
}

func TestNoteSaverCoalescesRapidEdits(t *testing.T) {
	saver, sink := newTestSaver(30 * time.Millisecond)

	req := models.ProcessNoteRequest{LotRunID: 12, StepCode: models.StepCodeSort}
	for _, content := range []string{"h", "he", "hea", "heavy dust"} {
		req.Content = content
		saver.Queue(req, "op")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	saved := sink.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "heavy dust", saved[0].req.Content)
	assert.Equal(t, "op", saved[0].updatedBy)
}

func TestNoteSaverKeysAreIndependent(t *testing.T) {
	saver, sink := newTestSaver(20 * time.Millisecond)

	saver.Queue(models.ProcessNoteRequest{LotRunID: 12, StepCode: models.StepCodeSort, Content: "a"}, "op")
	saver.Queue(models.ProcessNoteRequest{LotRunID: 12, StepCode: models.StepCodePack, Content: "b"}, "op")

	time.Sleep(80 * time.Millisecond)

	assert.Len(t, sink.saved(), 2)
}

func TestNoteSaverStopFlushesPending(t *testing.T) {
	// Long delay: nothing would fire on its own inside this test.
	saver, sink := newTestSaver(10 * time.Second)

	saver.Queue(models.ProcessNoteRequest{LotRunID: 3, StepCode: models.StepCodeWash, Content: "flush me"}, "op")
	saver.Stop()

	saved := sink.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "flush me", saved[0].req.Content)

	// Edits after Stop are dropped, not queued.
	saver.Queue(models.ProcessNoteRequest{LotRunID: 3, StepCode: models.StepCodeWash, Content: "late"}, "op")
	saver.Flush()
	assert.Len(t, sink.saved(), 1)
}
