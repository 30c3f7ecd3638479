package monitor

import "time"

// pollInterval controls how often the session samples engine scan state
// for the /watch feed. The engine's own fsnotify watcher (internal/index)
// already debounces filesystem events; this loop only samples the scanning
// flag and scanned-file count, quickly enough for a human watching /watch,
// and does not detect individual file events itself.
const pollInterval = 250 * time.Millisecond

func (s *Server) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := WatchMessage{}
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.session.pollOnce(&last)
		}
	}
}
