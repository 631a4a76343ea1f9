package services

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"backend/models"
	"backend/utils"
)

const noteUpsertQuery = `
	INSERT INTO process_notes (lot_run_id, step_code, content, updated_by, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (lot_run_id, step_code)
	DO UPDATE SET content = EXCLUDED.content, updated_by = EXCLUDED.updated_by, updated_at = NOW()`

type pendingNote struct {
	req       models.ProcessNoteRequest
	updatedBy string
}

// NoteSaver coalesces rapid process-note edits into one write per note key.
// Each (lot run, step) key moves through idle -> pending -> flushing: a new
// edit while pending cancels the timer and replaces the snapshot, so only
// the most recent content is persisted. Stop flushes whatever is pending so
// a shutdown never drops the last edit.
type NoteSaver struct {
	db    *sql.DB
	delay time.Duration

	mu      sync.Mutex
	pending map[string]pendingNote
	timers  map[string]*time.Timer
	closed  bool

	persist func(pendingNote) error
}

// DefaultNoteDelay matches the debounce interval the terminals were tuned to.
const DefaultNoteDelay = 300 * time.Millisecond

func NewNoteSaver(db *sql.DB, delay time.Duration) *NoteSaver {
	s := &NoteSaver{
		db:      db,
		delay:   delay,
		pending: make(map[string]pendingNote),
		timers:  make(map[string]*time.Timer),
	}
	s.persist = s.persistNote
	return s
}

func noteKey(req models.ProcessNoteRequest) string {
	return fmt.Sprintf("%d/%s", req.LotRunID, req.StepCode)
}

// Queue records the latest snapshot of a note and (re)arms its debounce
// timer. An earlier pending save for the same key is cancelled and replaced.
func (s *NoteSaver) Queue(req models.ProcessNoteRequest, updatedBy string) {
	key := noteKey(req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending[key] = pendingNote{req: req, updatedBy: updatedBy}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.delay, func() {
		s.flushKey(key)
	})
}

func (s *NoteSaver) flushKey(key string) {
	s.mu.Lock()
	note, ok := s.pending[key]
	delete(s.pending, key)
	delete(s.timers, key)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := s.persist(note); err != nil {
		log.Printf("note autosave: failed to persist note %s: %v", key, err)
	}
}

// Flush writes every pending note immediately.
func (s *NoteSaver) Flush() {
	s.mu.Lock()
	notes := make([]pendingNote, 0, len(s.pending))
	for key, note := range s.pending {
		if t, ok := s.timers[key]; ok {
			t.Stop()
		}
		notes = append(notes, note)
	}
	s.pending = make(map[string]pendingNote)
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	for _, note := range notes {
		if err := s.persist(note); err != nil {
			log.Printf("note autosave: failed to persist note %s: %v", noteKey(note.req), err)
		}
	}
}

// Stop refuses further edits and flushes what is pending.
func (s *NoteSaver) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Flush()
}

func (s *NoteSaver) persistNote(n pendingNote) error {
	ctx, cancel := utils.QueryContext(nil, utils.DefaultQueryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, noteUpsertQuery, n.req.LotRunID, n.req.StepCode, n.req.Content, n.updatedBy)
	return err
}
