package oracle

import (
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/jsonval"
)

// BatchEntry is one accepted (topic, hash, timestamp) triple of a payload,
// with its position in the batch.
type BatchEntry struct {
	Topic     string
	Hash      string
	Timestamp int64
	Index     int
}

// RoutePayload decodes a batch payload (a single object or an array of
// objects, each {topic, hash, timestamp}) and returns the entries whose
// topic is on the allow-list. Unknown and empty topics are skipped, not
// errors. Unknown extra fields are ignored.
func RoutePayload(cfg config.Config, payload []byte) ([]BatchEntry, error) {
	root, err := jsonval.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var entries []BatchEntry
	switch root.Kind {
	case jsonval.Array:
		for i, item := range root.Items {
			if e, ok := routeEntry(cfg, item, i); ok {
				entries = append(entries, e)
			}
		}
	case jsonval.Object:
		if e, ok := routeEntry(cfg, root, 0); ok {
			entries = append(entries, e)
		}
	default:
		return nil, fmt.Errorf("payload is neither an object nor an array")
	}
	return entries, nil
}

func routeEntry(cfg config.Config, val *jsonval.Value, index int) (BatchEntry, bool) {
	topic := jsonval.ToString(val.Get("topic"))
	if !cfg.AllowedTopic(topic) {
		return BatchEntry{}, false
	}
	return BatchEntry{
		Topic:     topic,
		Hash:      jsonval.ToString(val.Get("hash")),
		Timestamp: jsonval.ToInt64(val.Get("timestamp")),
		Index:     index,
	}, true
}
