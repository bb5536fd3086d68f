package frontier

import (
	"container/heap"
	"sort"

	"github.com/tomichandesu/research-tool-sub000/internal/entity"
)

type item struct {
	kw  entity.Keyword
	seq uint64
}

// queue orders items by descending score, then by insertion order.
type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].kw.Score != q[j].kw.Score {
		return q[i].kw.Score > q[j].kw.Score
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Frontier is a max-priority queue of keywords with at most one entry per
// keyword text. It is not safe for concurrent use.
type Frontier struct {
	q       queue
	members map[string]struct{}
	seq     uint64
}

func New() *Frontier {
	return &Frontier{members: make(map[string]struct{})}
}

func (f *Frontier) Len() int { return len(f.q) }

func (f *Frontier) Contains(text string) bool {
	_, ok := f.members[text]
	return ok
}

// Push adds kw unless an entry with the same text is already queued.
func (f *Frontier) Push(kw entity.Keyword) bool {
	if kw.Text == "" || f.Contains(kw.Text) {
		return false
	}
	f.seq++
	heap.Push(&f.q, item{kw: kw, seq: f.seq})
	f.members[kw.Text] = struct{}{}
	return true
}

// Pop removes and returns the highest-priority keyword.
func (f *Frontier) Pop() (entity.Keyword, bool) {
	if len(f.q) == 0 {
		return entity.Keyword{}, false
	}
	it := heap.Pop(&f.q).(item)
	delete(f.members, it.kw.Text)
	return it.kw, true
}

// Rewrite drains every entry through fn, keeps those for which fn returns
// true (with the returned value) and restores the heap. Insertion order is
// preserved for tie-breaking.
func (f *Frontier) Rewrite(fn func(entity.Keyword) (entity.Keyword, bool)) {
	kept := f.q[:0]
	members := make(map[string]struct{}, len(f.q))
	for _, it := range f.q {
		kw, keep := fn(it.kw)
		if !keep {
			continue
		}
		kw.Text = it.kw.Text
		kept = append(kept, item{kw: kw, seq: it.seq})
		members[kw.Text] = struct{}{}
	}
	f.q = kept
	f.members = members
	heap.Init(&f.q)
}

// Snapshot returns the queued keywords in priority order without modifying the frontier.
func (f *Frontier) Snapshot() []entity.Keyword {
	items := append(queue(nil), f.q...)
	sort.Sort(items)
	out := make([]entity.Keyword, len(items))
	for i, it := range items {
		out[i] = it.kw
	}
	return out
}

// Mean returns the mean score of queued keywords, or 0 when empty.
func (f *Frontier) Mean() float64 {
	if len(f.q) == 0 {
		return 0
	}
	var sum float64
	for _, it := range f.q {
		sum += it.kw.Score
	}
	return sum / float64(len(f.q))
}
