package metadata_test

import (
	"testing"

	"github.com/rohmanhakim/pagefrontier/internal/metadata"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RecordStampsTimestamp(t *testing.T) {
	r := metadata.NewRecorder(0)
	r.Record(metadata.Event{Kind: metadata.EventPageAdded})

	events := r.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].ObservedAt.IsZero())
}

func TestRecorder_RingBufferCap(t *testing.T) {
	r := metadata.NewRecorder(2)
	for i := 0; i < 5; i++ {
		r.Record(metadata.Event{Kind: metadata.EventPageAdded})
	}
	assert.Len(t, r.Events(), 2)
}

func TestRecorder_RecordErrorMapsCause(t *testing.T) {
	r := metadata.NewRecorder(0)
	err := failure.New(failure.KindNoPage, failure.SeverityRecoverable, "no such hash")
	r.RecordError("pagedb", "GetInfo", err, metadata.NewAttr(metadata.AttrHash, "abc"))

	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, metadata.CauseNoPage, events[0].Cause)
	assert.Equal(t, metadata.EventError, events[0].Kind)
}
