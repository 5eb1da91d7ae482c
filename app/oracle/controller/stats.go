package controller

import (
	"encoding/json"
	"net/http"
)

// HandleStats returns the processor's running ingest counters.
func (c *Controller) HandleStats(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(c.App.Processor.Stats().Snapshot())
}
