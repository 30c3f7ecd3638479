package monitor

import (
	"encoding/json"
	"net/http"
)

// handleHealth mirrors the boundary health_check payload.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	report := s.engine.HealthCheck("")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(report)
}

// scanProgressResponse carries the scanned count that the boundary
// get_scan_progress payload reports, plus whether a scan is in progress.
type scanProgressResponse struct {
	Scanning bool  `json:"scanning"`
	Scanned  int64 `json:"scanned"`
}

func (s *Server) handleScanProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := scanProgressResponse{
		Scanning: s.engine.IsScanning(),
		Scanned:  s.engine.GetScanProgress(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
