package tts

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Event reports one finished synthesis job.
type Event struct {
	Text     string
	AudioURL string
	Final    bool
	Err      error
}

// QueueConfig tunes one session's synthesis queue.
type QueueConfig struct {
	ClientID   string
	JobTimeout time.Duration
	JobDelay   time.Duration
	Buffer     int
}

type job struct {
	text   string
	final  bool
	params Params
}

// Queue serializes synthesis for one session: FIFO, a single worker, and
// per-session dedupe of already-dispatched sentences. Failures are
// isolated per sentence and never abort the queue.
type Queue struct {
	cfg      QueueConfig
	provider Provider
	store    *ArtifactStore
	emit     func(Event)

	mu         sync.Mutex
	params     Params
	dispatched map[string]struct{}

	jobs       chan job
	done       chan struct{}
	workerDone chan struct{}
	closeOnce  sync.Once
}

func NewQueue(cfg QueueConfig, provider Provider, store *ArtifactStore, emit func(Event)) *Queue {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 20 * time.Second
	}
	if cfg.JobDelay < 0 {
		cfg.JobDelay = 0
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	return &Queue{
		cfg:        cfg,
		provider:   provider,
		store:      store,
		emit:       emit,
		dispatched: make(map[string]struct{}),
		jobs:       make(chan job, cfg.Buffer),
		done:       make(chan struct{}),
		workerDone: make(chan struct{}),
	}
}

// Start launches the single worker goroutine.
func (q *Queue) Start() {
	go q.worker()
}

// SetParams updates the synthesis parameters for jobs enqueued afterwards.
func (q *Queue) SetParams(p Params) {
	q.mu.Lock()
	q.params = p
	q.mu.Unlock()
}

// Enqueue appends one sentence. Returns false when the sentence is empty,
// was already dispatched this session, or the queue is shutting down.
func (q *Queue) Enqueue(text string, final bool) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	q.mu.Lock()
	if _, seen := q.dispatched[trimmed]; seen {
		q.mu.Unlock()
		return false
	}
	q.dispatched[trimmed] = struct{}{}
	params := q.params
	q.mu.Unlock()

	select {
	case <-q.done:
		q.forget(trimmed)
		return false
	default:
	}
	select {
	case q.jobs <- job{text: trimmed, final: final, params: params}:
		return true
	default:
		// Dropped, not dispatched; the sentence may be enqueued again.
		q.forget(trimmed)
		return false
	}
}

func (q *Queue) forget(trimmed string) {
	q.mu.Lock()
	delete(q.dispatched, trimmed)
	q.mu.Unlock()
}

// Close stops the worker. Any in-flight job finishes first so no partial
// audio file is left behind. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	<-q.workerDone
}

func (q *Queue) worker() {
	defer close(q.workerDone)
	for {
		select {
		case <-q.done:
			return
		case j := <-q.jobs:
			q.run(j)
			if q.cfg.JobDelay > 0 {
				select {
				case <-q.done:
					return
				case <-time.After(q.cfg.JobDelay):
				}
			}
		}
	}
}

func (q *Queue) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.JobTimeout)
	defer cancel()

	data, err := q.provider.Synthesize(ctx, j.text, j.params)
	if err != nil {
		q.emit(Event{Text: j.text, Final: j.final, Err: err})
		return
	}
	url, err := q.store.Save(q.cfg.ClientID, data)
	if err != nil {
		q.emit(Event{Text: j.text, Final: j.final, Err: err})
		return
	}
	q.emit(Event{Text: j.text, AudioURL: url, Final: j.final})
}
