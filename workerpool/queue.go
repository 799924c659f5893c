package workerpool

import (
	"image"
	"sync"
)

// tileQueue hands out the tiles of one render. Once every tile has been
// handed out, tiles still in process are handed out again so idle workers
// race slow ones instead of waiting on them.
type tileQueue struct {
	unstarted []image.Rectangle
	inProcess map[image.Rectangle]struct{}

	totalPixels    int
	finishedPixels int

	m sync.Mutex
}

func newTileQueue(tiles []image.Rectangle) *tileQueue {
	q := &tileQueue{
		unstarted: append([]image.Rectangle(nil), tiles...),
		inProcess: make(map[image.Rectangle]struct{}, len(tiles)),
	}
	for _, t := range tiles {
		q.totalPixels += t.Dx() * t.Dy()
	}
	return q
}

func (q *tileQueue) popTile() (tile image.Rectangle, found bool) {
	q.m.Lock()
	defer q.m.Unlock()

	// Get unstarted tile
	if len(q.unstarted) > 0 {
		tile = q.unstarted[0]
		q.unstarted = q.unstarted[1:]
		q.inProcess[tile] = struct{}{}
		return tile, true
	}

	// If there is no unstarted tile, we work again on a started one
	for tile = range q.inProcess {
		return tile, true
	}

	return image.Rectangle{}, false
}

// tileFinished marks tile as done. It reports false if another worker
// already finished the same tile.
func (q *tileQueue) tileFinished(tile image.Rectangle) bool {
	q.m.Lock()
	defer q.m.Unlock()

	if _, found := q.inProcess[tile]; !found {
		return false
	}
	delete(q.inProcess, tile)
	q.finishedPixels += tile.Dx() * tile.Dy()
	return true
}

// finished returns the fraction of pixels done.
func (q *tileQueue) finished() float32 {
	q.m.Lock()
	defer q.m.Unlock()
	if q.totalPixels == 0 {
		return 1
	}
	return float32(q.finishedPixels) / float32(q.totalPixels)
}

func (q *tileQueue) done() bool {
	q.m.Lock()
	defer q.m.Unlock()
	return len(q.unstarted) == 0 && len(q.inProcess) == 0
}
