package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/edgeandnode/qos-oracle/app/oracle/types"
	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/edgeandnode/qos-oracle/pkg/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestController(t *testing.T) (*Controller, *entity.Stores) {
	t.Helper()
	stores := entity.NewMemoryStores()
	app := &types.App{
		Logger:    zap.NewNop(),
		Config:    config.Default(),
		Stores:    stores,
		Processor: oracle.NewProcessor(zap.NewNop(), config.Default(), stores, nil),
	}
	return NewController(app), stores
}

func TestHandleIndexerRollup(t *testing.T) {
	ctx := context.Background()
	ctler, stores := newTestController(t)
	router, err := ctler.NewRouter()
	require.NoError(t, err)

	require.NoError(t, stores.IndexerDaily.Save(ctx, &entity.IndexerDailyDataPoint{
		ID:             "0xaaa-QmDeploy-50",
		DayNumber:      50,
		Indexer:        "0xaaa",
		Deployment:     "QmDeploy",
		DataPointCount: 3,
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/rollups/indexer/0xaaa/QmDeploy/50", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.IndexerDailyDataPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0xaaa-QmDeploy-50", got.ID)
	assert.Equal(t, int64(3), got.DataPointCount)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/rollups/indexer/0xbbb/QmDeploy/50", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleQueryRollup(t *testing.T) {
	ctx := context.Background()
	ctler, stores := newTestController(t)
	router, err := ctler.NewRouter()
	require.NoError(t, err)

	require.NoError(t, stores.QueryDaily.Save(ctx, &entity.QueryDailyDataPoint{
		ID:         "QmDeploy-50",
		DayNumber:  50,
		Deployment: "QmDeploy",
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/rollups/query/QmDeploy/50", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got entity.QueryDailyDataPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "QmDeploy-50", got.ID)
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	ctler, stores := newTestController(t)
	router, err := ctler.NewRouter()
	require.NoError(t, err)

	require.NoError(t, stores.Messages.Save(ctx, &entity.OracleMessage{ID: "0xtx1", Valid: true}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/messages/0xtx1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/messages/0xother", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStats(t *testing.T) {
	ctler, _ := newTestController(t)
	router, err := ctler.NewRouter()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap oracle.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Zero(t, snap.Messages)
}
