package authority

import (
	"hash/fnv"
	"sync"
)

// keyLocks serializes writes per (video, user) inside one instance.
// Video-wide operations take the video stripe exclusively; per-user
// operations share it. Locks are always taken video stripe first.
type keyLocks struct {
	videos [64]sync.RWMutex
	pairs  [256]sync.Mutex
}

func (l *keyLocks) lockPair(videoID, userID string) func() {
	v := &l.videos[stripe(videoID)%uint32(len(l.videos))]
	p := &l.pairs[stripe(videoID, userID)%uint32(len(l.pairs))]
	v.RLock()
	p.Lock()
	return func() {
		p.Unlock()
		v.RUnlock()
	}
}

func (l *keyLocks) lockVideo(videoID string) func() {
	v := &l.videos[stripe(videoID)%uint32(len(l.videos))]
	v.Lock()
	return v.Unlock
}

func stripe(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum32()
}
