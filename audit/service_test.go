package audit

import (
	"context"
	"testing"
	"time"

	"github.com/gestia/mailroom/model"
	"github.com/gestia/mailroom/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogWritesBatchedEntries(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, zap.NewNop())

	accountID := int64(7)
	woID := int64(3)
	svc.Log(Entry{
		TraceID:     "trace-1",
		AccountID:   &accountID,
		Action:      "mailbox.read",
		WorkorderID: &woID,
		Request:     map[string]bool{"value": true},
		IP:          "127.0.0.1",
		DurationMs:  4,
	})

	require.Eventually(t, func() bool {
		var count int64
		gdb.Model(&model.CommandAudit{}).Count(&count)
		return count == 1
	}, 5*time.Second, 50*time.Millisecond)

	var rec model.CommandAudit
	require.NoError(t, gdb.First(&rec).Error)
	assert.Equal(t, "mailbox.read", rec.Action)
	assert.Equal(t, "trace-1", rec.TraceID)
	require.NotNil(t, rec.AccountID)
	assert.Equal(t, accountID, *rec.AccountID)
	assert.JSONEq(t, `{"value":true}`, string(rec.Request))

	svc.Stop(context.Background())
}

func TestStopDrainsPending(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, zap.NewNop())

	for i := 0; i < 10; i++ {
		svc.Log(Entry{Action: "mailbox.star"})
	}
	svc.Stop(context.Background())

	var count int64
	gdb.Model(&model.CommandAudit{}).Count(&count)
	assert.Equal(t, int64(10), count)
}

func TestStopIsIdempotent(t *testing.T) {
	gdb := testutil.SetupTestDB(t)
	svc := New(gdb, zap.NewNop())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}
