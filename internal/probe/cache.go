// ABOUTME: Process-wide cache of the most recently discovered backend entry path
// ABOUTME: Lock-free, last write wins, read when building backend clients

package probe

import "sync/atomic"

// PathCache holds the last usable path found by a probe. The zero value is empty.
type PathCache struct {
	path atomic.Pointer[string]
}

// Get returns the cached path and whether one has been recorded.
func (c *PathCache) Get() (string, bool) {
	p := c.path.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Set records a discovered path, replacing any previous value.
func (c *PathCache) Set(path string) {
	c.path.Store(&path)
}

// Clear forgets the cached path.
func (c *PathCache) Clear() {
	c.path.Store(nil)
}
