package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// SubmitRequest is the relay's envelope for one observed payload call.
type SubmitRequest struct {
	TxHash    string `json:"txHash"`
	Payload   string `json:"payload"`
	Submitter string `json:"submitter"`
	Timestamp int64  `json:"timestamp"`
	Block     uint64 `json:"block"`
}

// HandleSubmit appends a submission to the intake stream. The consumer
// picks it up in arrival order; this handler never processes inline, so the
// one-at-a-time contract of the pipeline holds.
func (c *Controller) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body"})
		return
	}
	if req.TxHash == "" || req.Payload == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "txHash and payload are required"})
		return
	}

	entryID, err := c.App.RedisClient.XAdd(ctx, c.App.Stream, map[string]interface{}{
		"tx_hash":   req.TxHash,
		"payload":   req.Payload,
		"submitter": req.Submitter,
		"timestamp": strconv.FormatInt(req.Timestamp, 10),
		"block":     strconv.FormatUint(req.Block, 10),
	})
	if err != nil {
		c.App.Logger.Error("Failed to enqueue submission", zap.String("txHash", req.TxHash), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "enqueue failed"})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": entryID})
}
