package trace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEnabledReturnsRecordingTracer(t *testing.T) {
	tr := New(true)
	end := tr.Start("fetch-neighborhood")
	end(map[string]interface{}{"nodes": 5}, "partial data")

	snap := tr.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Stages, 1)
	require.Equal(t, "fetch-neighborhood", snap.Stages[0].Name)
	require.Equal(t, []string{"partial data"}, snap.Stages[0].Warnings)
	require.GreaterOrEqual(t, snap.Stages[0].DurationMs, 0.0)
}

func TestNewDisabledReturnsNoopTracer(t *testing.T) {
	tr := New(false)
	end := tr.Start("fetch-neighborhood")
	end(map[string]interface{}{"nodes": 5})

	require.Nil(t, tr.Snapshot())
}

func TestRecordingTracerAccumulatesMultipleStages(t *testing.T) {
	tr := NewRecording()
	tr.Start("a")(nil)
	tr.Start("b")(nil)

	snap := tr.Snapshot()
	require.Len(t, snap.Stages, 2)
	require.Equal(t, "a", snap.Stages[0].Name)
	require.Equal(t, "b", snap.Stages[1].Name)
}

func TestSnapshotReturnsACopyNotTheLiveSlice(t *testing.T) {
	tr := NewRecording()
	tr.Start("a")(nil)

	first := tr.Snapshot()
	tr.Start("b")(nil)
	second := tr.Snapshot()

	require.Len(t, first.Stages, 1, "earlier snapshot must not observe later stages")
	require.Len(t, second.Stages, 2)
}
