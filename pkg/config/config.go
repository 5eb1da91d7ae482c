// Package config carries the oracle's constant tables: the topic and
// submitter allow-lists and the day-bucket anchoring constants. The tables
// are plain immutable values handed to each component at construction so
// tests can substitute their own.
package config

import (
	"strings"

	"github.com/edgeandnode/qos-oracle/pkg/utils"
)

const (
	// SecondsPerDay is the bucket width for the daily rollups.
	SecondsPerDay = 86400

	// LaunchDay anchors day 0 of the rollup timeline to the network launch
	// date (2020-11-17 UTC, epoch day 18613).
	LaunchDay = 18613
)

// Config is the immutable configuration injected into the ingest pipeline.
type Config struct {
	// Topics is the exact-membership allow-list of batch-level topic names.
	Topics []string

	// Submitters is the allow-list of lowercase hex submitter addresses.
	// A batch from any other address is recorded as invalid and dropped.
	Submitters []string

	// LaunchDay is the epoch-day offset subtracted from floor(ts/86400)
	// when deriving a rollup's day number.
	LaunchDay int64
}

// Default returns the production configuration. The topic list spans the two
// qos families across the two protocol versions currently emitted by the
// gateways; retired topic generations are dropped from here once no oracle
// submits them anymore.
func Default() Config {
	return Config{
		Topics: []string{
			"gateway_query_result_qos_5_minutes_prod_v2",
			"gateway_indexer_attempt_qos_5_minutes_prod_v2",
			"gateway_query_result_qos_5_minutes_prod_v3",
			"gateway_indexer_attempt_qos_5_minutes_prod_v3",
		},
		Submitters: []string{
			"0x187489bec3d7883bdcdb3c72fa8de6ac1a0e3d16",
			"0xd447211a5e16a5dbaa98d070ebe27c82fa3bd4bf",
		},
		LaunchDay: LaunchDay,
	}
}

// FromEnv returns Default overridden by the QOS_TOPICS and QOS_SUBMITTERS
// environment variables (comma-separated) when present.
func FromEnv() Config {
	cfg := Default()
	if v := utils.Env("QOS_TOPICS", ""); v != "" {
		cfg.Topics = splitList(v)
	}
	if v := utils.Env("QOS_SUBMITTERS", ""); v != "" {
		cfg.Submitters = splitList(strings.ToLower(v))
	}
	return cfg
}

// AllowedTopic reports whether topic is non-empty and on the allow-list.
func (c Config) AllowedTopic(topic string) bool {
	if topic == "" {
		return false
	}
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// AllowedSubmitter reports whether addr is on the submitter allow-list.
// Matching is case-insensitive; the list itself is stored lowercase.
func (c Config) AllowedSubmitter(addr string) bool {
	addr = strings.ToLower(addr)
	for _, s := range c.Submitters {
		if s == addr {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
