package decision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"topology-sim-engine/pkg/storage"
)

func newTempStore(t *testing.T) *storage.DecisionStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "decisions.db")
	store, err := storage.NewDecisionStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteSinkLogPersistsAndReturnsRecord(t *testing.T) {
	store := newTempStore(t)
	sink := NewSQLiteSink(store)

	record, err := sink.Log(Input{
		Type:          "failure",
		Scenario:      map[string]interface{}{"serviceId": "prod:payments"},
		Result:        map[string]interface{}{"affectedCallers": 1},
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	require.NotZero(t, record.ID)
	require.Equal(t, "failure", record.Type)

	history, err := store.GetHistory(storage.GetHistoryOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "corr-1", history[0].CorrelationID)
}

func TestSQLiteSinkSatisfiesSinkInterface(t *testing.T) {
	var _ Sink = (*SQLiteSink)(nil)
}
