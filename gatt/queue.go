package gatt

import "sync"

// frameQueue buffers notification frames so that the radio callback never blocks.
type frameQueue struct {
  mu sync.Mutex
  frames [][]byte

  signal chan struct{}
}

func newFrameQueue() *frameQueue {
  return &frameQueue{signal: make(chan struct{}, 1)}
}

func (q *frameQueue) push(frame []byte) {
  q.mu.Lock()
  q.frames = append(q.frames, frame)
  q.mu.Unlock()

  select {
  case q.signal <- struct{}{}:
  default:
  }
}

func (q *frameQueue) drain() (frames [][]byte) {
  q.mu.Lock()
  defer q.mu.Unlock()

  frames, q.frames = q.frames, nil
  return frames
}
