package frontier

import (
	"net/url"
	"sync"
)

/*
Frontier Responsibilities
- Maintain BFS/DFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Frontier holds the ordered queue of pending CrawlTokens plus the seen-set
// that prevents re-dispatching the same URL twice. Every mutation of pending
// or seen happens under mu; there is exactly one lock for both, since the
// two must move together at dispatch and at Cloudflare requeue time.
type Frontier struct {
	mu         sync.Mutex
	pending    pendingQueue
	seen       Set[string]
	depthFirst bool
	maxDepth   int
}

// pendingQueue abstracts over FIFO (tail-insert, breadth-first) and LIFO
// (head-insert, depth-first) ordering, chosen once at construction.
type pendingQueue interface {
	push(item CrawlToken)
	pop() (CrawlToken, bool)
	drain() []CrawlToken
	len() int
}

type fifoPendingQueue struct {
	queue FIFOQueue[CrawlToken]
}

func (q *fifoPendingQueue) push(item CrawlToken) {
	q.queue.Enqueue(item)
}

func (q *fifoPendingQueue) pop() (CrawlToken, bool) {
	return q.queue.Dequeue()
}

func (q *fifoPendingQueue) drain() []CrawlToken {
	drained := []CrawlToken(q.queue)
	q.queue = FIFOQueue[CrawlToken]{}
	return drained
}

func (q *fifoPendingQueue) len() int {
	return q.queue.Size()
}

// lifoPendingQueue inserts and removes from the head, giving depth-first
// preference: the most recently discovered link is dispatched next.
type lifoPendingQueue struct {
	stack []CrawlToken
}

func (q *lifoPendingQueue) push(item CrawlToken) {
	q.stack = append([]CrawlToken{item}, q.stack...)
}

func (q *lifoPendingQueue) pop() (CrawlToken, bool) {
	var zero CrawlToken
	if len(q.stack) == 0 {
		return zero, false
	}
	first := q.stack[0]
	q.stack = q.stack[1:]
	return first, true
}

func (q *lifoPendingQueue) drain() []CrawlToken {
	drained := q.stack
	q.stack = nil
	return drained
}

func (q *lifoPendingQueue) len() int {
	return len(q.stack)
}

// NewFrontier builds an empty Frontier. depthFirst selects head-insertion
// (LIFO/DFS preference) over the default tail-insertion (FIFO/BFS
// preference). maxDepth is the remaining_depth assigned to a Submit call
// that passes a nil depth (i.e. a seed URL).
func NewFrontier(depthFirst bool, maxDepth int) *Frontier {
	var pending pendingQueue
	if depthFirst {
		pending = &lifoPendingQueue{}
	} else {
		pending = &fifoPendingQueue{}
	}

	return &Frontier{
		pending:    pending,
		seen:       NewSet[string](),
		depthFirst: depthFirst,
		maxDepth:   maxDepth,
	}
}

// canonicalKey is the exact string this Frontier uses for seen-set
// membership. There is no normalization beyond what callers already applied
// via urlutil.Normalize; the Frontier is consistent about canonicalizing
// at exactly one point: here, always before a seen check.
func canonicalKey(u url.URL) string {
	return u.String()
}

// Submit inserts a URL into pending at the configured head/tail position.
// depth == nil means "use the configured max depth" (a seed). depth < 0 is
// rejected. Submit never consults or mutates seen: duplicate suppression
// happens at dispatch time, in Dequeue.
func (f *Frontier) Submit(u url.URL, depth *int) bool {
	d := f.maxDepth
	if depth != nil {
		d = *depth
	}
	if d < 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pending.push(NewCrawlToken(u, d))
	return true
}

// Dequeue pops the next eligible CrawlToken: it skips (and permanently
// discards) any pending entry whose URL is already in seen, then marks the
// returned token's URL as seen before handing it back. Returns ok=false when
// pending is exhausted.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		item, ok := f.pending.pop()
		if !ok {
			var zero CrawlToken
			return zero, false
		}

		key := canonicalKey(item.URL())
		if f.seen.Contains(key) {
			continue
		}

		f.seen.Add(key)
		return item, true
	}
}

// Drain atomically swaps out pending and returns its previous contents in
// traversal order. The Controller's soft stop calls it to empty pending and
// discards what it returns.
func (f *Frontier) Drain() []CrawlToken {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pending.drain()
}

// Requeue re-admits a previously dispatched token at its current depth and
// removes it from seen, atomically. This is the sole path by which an
// already-seen URL re-enters pending: the Cloudflare requeue case in the
// Fetcher (§4.3).
func (f *Frontier) Requeue(token CrawlToken) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen.Remove(canonicalKey(token.URL()))
	f.pending.push(token)
}

// Seen reports whether u is already in the seen-set. This is a read-only
// peek for the Admission filter's early-reject step: it lets Admission
// skip pattern/scope evaluation for an already-dispatched URL, but it is
// advisory only. Dequeue remains the sole authority that
// actually enforces the seen-set - a true/false answer here can go stale
// the instant another worker dequeues concurrently.
func (f *Frontier) Seen(u url.URL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seen.Contains(canonicalKey(u))
}

// PendingLen reports how many items currently sit in pending.
func (f *Frontier) PendingLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pending.len()
}

// VisitedCount reports how many distinct URLs have been marked seen.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seen.Size()
}

// MaxDepth returns the depth assigned to Submit calls with a nil depth.
func (f *Frontier) MaxDepth() int {
	return f.maxDepth
}

// DepthFirst reports whether this Frontier was constructed with head
// (depth-first) insertion.
func (f *Frontier) DepthFirst() bool {
	return f.depthFirst
}
