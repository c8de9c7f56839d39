package model

import "sync"

// MaxWalkingSteps bounds a queued path.
const MaxWalkingSteps = 50

// WalkingQueue holds the destinations a player will step through, one per
// tick.
type WalkingQueue struct {
	mu      sync.Mutex
	points  []Position
	running bool
}

// Replace discards the current path and queues points, truncated to
// MaxWalkingSteps.
func (q *WalkingQueue) Replace(points []Position, running bool) {
	if len(points) > MaxWalkingSteps {
		points = points[:MaxWalkingSteps]
	}
	q.mu.Lock()
	q.points = append(q.points[:0], points...)
	q.running = running
	q.mu.Unlock()
}

// Next pops the next destination.
func (q *WalkingQueue) Next() (Position, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.points) == 0 {
		return Position{}, false
	}
	p := q.points[0]
	q.points = q.points[1:]
	return p, true
}

func (q *WalkingQueue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *WalkingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.points)
}

func (q *WalkingQueue) Clear() {
	q.mu.Lock()
	q.points = nil
	q.running = false
	q.mu.Unlock()
}
