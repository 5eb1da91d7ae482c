package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedTopic(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.AllowedTopic("gateway_query_result_qos_5_minutes_prod_v2"))
	assert.True(t, cfg.AllowedTopic("gateway_indexer_attempt_qos_5_minutes_prod_v3"))
	assert.False(t, cfg.AllowedTopic("gateway_query_result_qos_5_minutes_prod"), "membership is exact, not prefix")
	assert.False(t, cfg.AllowedTopic("gateway_query_result_qos_5_minutes_staging_v2"))
	assert.False(t, cfg.AllowedTopic(""))
}

func TestAllowedSubmitter(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.AllowedSubmitter("0x187489bec3d7883bdcdb3c72fa8de6ac1a0e3d16"))
	assert.True(t, cfg.AllowedSubmitter("0x187489BEC3D7883BDCDB3C72FA8DE6AC1A0E3D16"))
	assert.False(t, cfg.AllowedSubmitter("0x1111111111111111111111111111111111111111"))
	assert.False(t, cfg.AllowedSubmitter(""))
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("QOS_TOPICS", "topic_a, topic_b")
	t.Setenv("QOS_SUBMITTERS", "0xAA,0xBB")

	cfg := FromEnv()
	assert.Equal(t, []string{"topic_a", "topic_b"}, cfg.Topics)
	assert.Equal(t, []string{"0xaa", "0xbb"}, cfg.Submitters, "submitters are stored lowercase")
	assert.Equal(t, int64(LaunchDay), cfg.LaunchDay)
}
