package indexer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusProcessing   SessionStatus = "processing"
	StatusCompleted    SessionStatus = "completed"
	StatusPartial      SessionStatus = "partial"
	StatusError        SessionStatus = "error"
)

// Session is a point-in-time snapshot of one upload's progress.
type Session struct {
	UploadID    string        `json:"upload_id"`
	Repository  string        `json:"repository"`
	TotalFiles  int           `json:"total_files"`
	Parsed      int           `json:"parsed"`
	Chunked     int           `json:"chunked"`
	Embedded    int           `json:"embedded"`
	Stored      int           `json:"stored"`
	Graphed     int           `json:"graphed"`
	CurrentFile string        `json:"current_file,omitempty"`
	Errors      []FileError   `json:"errors,omitempty"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// SessionTracker keeps upload sessions in memory. Sessions are created
// when a request arrives, updated by the orchestrator through a bound
// reporter, and read back by status polling.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{sessions: make(map[string]*Session)}
}

// Start registers a new session and returns its upload id.
func (t *SessionTracker) Start(repository string, totalFiles int) string {
	id := uuid.NewString()
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[id] = &Session{
		UploadID:   id,
		Repository: repository,
		TotalFiles: totalFiles,
		Status:     StatusInitializing,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	return id
}

// Get returns a snapshot of the session, or false when unknown.
func (t *SessionTracker) Get(uploadID string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[uploadID]
	if !ok {
		return Session{}, false
	}
	snap := *s
	snap.Errors = append([]FileError(nil), s.Errors...)
	return snap, true
}

// MarkError force-fails a session after a top-level failure.
func (t *SessionTracker) MarkError(uploadID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[uploadID]
	if !ok {
		return
	}
	s.Status = StatusError
	if err != nil {
		s.Errors = append(s.Errors, FileError{Error: err.Error()})
	}
	s.UpdatedAt = time.Now()
}

// Purge drops terminal sessions older than the retention window.
func (t *SessionTracker) Purge(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, s := range t.sessions {
		switch s.Status {
		case StatusCompleted, StatusPartial, StatusError:
			if s.UpdatedAt.Before(cutoff) {
				delete(t.sessions, id)
				removed++
			}
		}
	}
	return removed
}

// Reporter returns a ProgressReporter bound to one session. Unknown ids
// yield a reporter that drops everything.
func (t *SessionTracker) Reporter(uploadID string) ProgressReporter {
	t.mu.RLock()
	_, ok := t.sessions[uploadID]
	t.mu.RUnlock()
	if !ok {
		return NoOpProgressReporter{}
	}
	return &sessionReporter{tracker: t, uploadID: uploadID}
}

// sessionReporter translates pipeline callbacks into session updates.
type sessionReporter struct {
	tracker  *SessionTracker
	uploadID string
}

func (r *sessionReporter) update(fn func(*Session)) {
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	s, ok := r.tracker.sessions[r.uploadID]
	if !ok {
		return
	}
	fn(s)
	s.UpdatedAt = time.Now()
}

func (r *sessionReporter) OnProcessingStart(totalFiles int) {
	r.update(func(s *Session) {
		s.TotalFiles = totalFiles
		s.Status = StatusProcessing
	})
}

func (r *sessionReporter) OnFileStage(fileName string, stage Stage) {
	r.update(func(s *Session) {
		s.CurrentFile = fileName
		switch stage {
		case StageParsed:
			s.Parsed++
		case StageChunked:
			s.Chunked++
		case StageEmbedded:
			s.Embedded++
		case StageStored:
			s.Stored++
		}
	})
}

func (r *sessionReporter) OnFileProcessed(fileName string) {
	r.update(func(s *Session) {
		s.CurrentFile = fileName
	})
}

func (r *sessionReporter) OnGraphBuildStart() {}

func (r *sessionReporter) OnGraphBuildComplete(nodeCount, edgeCount int, took time.Duration) {
	r.update(func(s *Session) {
		s.Graphed = s.Stored
	})
}

func (r *sessionReporter) OnComplete(summary *IndexingSummary) {
	r.update(func(s *Session) {
		s.CurrentFile = ""
		s.Errors = append(s.Errors, summary.Errors...)
		switch {
		case summary.FailedFiles == 0:
			s.Status = StatusCompleted
		case summary.IndexedFiles > 0:
			s.Status = StatusPartial
		default:
			s.Status = StatusError
		}
	})
}
