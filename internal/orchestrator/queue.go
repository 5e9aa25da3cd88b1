package orchestrator

// mergeOutcome describes what Merge did with an incoming job.
type mergeOutcome int

const (
	mergeAppended mergeOutcome = iota // new key, appended at tail
	mergeReplaced                     // higher priority, replaced in place
	mergeKept                         // existing entry wins, incoming dropped
)

// jobQueue is the pending backlog: insertion-ordered, one entry per key.
// A resubmitted key replaces the existing entry in place only when the
// incoming priority is strictly greater, so the original queue position is
// always preserved (FIFO-stable priority merge). Not safe for concurrent
// use; the engine loop is the only caller.
type jobQueue struct {
	order []string
	byKey map[string]Job
}

func newJobQueue() *jobQueue {
	return &jobQueue{byKey: make(map[string]Job)}
}

func (q *jobQueue) Len() int { return len(q.order) }

func (q *jobQueue) Contains(key string) bool {
	_, ok := q.byKey[key]
	return ok
}

// Merge applies the submit semantics for a single job.
func (q *jobQueue) Merge(j Job) mergeOutcome {
	existing, ok := q.byKey[j.Key]
	if !ok {
		q.order = append(q.order, j.Key)
		q.byKey[j.Key] = j
		return mergeAppended
	}
	if j.Priority > existing.Priority {
		q.byKey[j.Key] = j
		return mergeReplaced
	}
	return mergeKept
}

// PopFront removes and returns up to n jobs from the queue head.
func (q *jobQueue) PopFront(n int) []Job {
	if n > len(q.order) {
		n = len(q.order)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Job, 0, n)
	for _, key := range q.order[:n] {
		out = append(out, q.byKey[key])
		delete(q.byKey, key)
	}
	q.order = append(q.order[:0], q.order[n:]...)
	return out
}

// Jobs returns the queued jobs in order without removing them.
func (q *jobQueue) Jobs() []Job {
	out := make([]Job, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.byKey[key])
	}
	return out
}

// Restore replaces the queue contents with the given jobs, preserving order.
// Duplicate keys keep the first occurrence.
func (q *jobQueue) Restore(jobs []Job) {
	q.order = q.order[:0]
	clear(q.byKey)
	for _, j := range jobs {
		if _, ok := q.byKey[j.Key]; ok {
			continue
		}
		q.order = append(q.order, j.Key)
		q.byKey[j.Key] = j
	}
}
