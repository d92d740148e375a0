package pipeline

import (
	"testing"
	"time"

	"aviator-tracker-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_ReleasesAtSizeThreshold(t *testing.T) {
	acc := NewAccumulator(3, time.Hour)

	assert.Nil(t, acc.Add(roundRec("balkanbet", 1)))
	assert.Nil(t, acc.Add(roundRec("balkanbet", 2)))

	b := acc.Add(roundRec("balkanbet", 3))
	require.NotNil(t, b)
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, models.DestinationKey{Bookmaker: "balkanbet", Kind: models.KindRound}, b.Key)

	// Released batch is closed: the next record opens a fresh one.
	assert.Nil(t, acc.Add(roundRec("balkanbet", 4)))
	assert.Equal(t, 1, acc.Pending())
}

func TestAccumulator_GroupsByDestinationKey(t *testing.T) {
	acc := NewAccumulator(2, time.Hour)

	assert.Nil(t, acc.Add(roundRec("balkanbet", 1)))
	assert.Nil(t, acc.Add(roundRec("maxbet", 1)))
	assert.Nil(t, acc.Add(models.NewSnapshotRecord("balkanbet", time.Now(), models.Snapshot{RoundID: 1})))

	// Same bookmaker, same kind: crosses the threshold.
	b := acc.Add(roundRec("balkanbet", 2))
	require.NotNil(t, b)
	for _, rec := range b.Items {
		assert.Equal(t, b.Key, rec.Key())
	}
	assert.Equal(t, 2, acc.Pending())
}

func TestAccumulator_Expired(t *testing.T) {
	acc := NewAccumulator(50, 100*time.Millisecond)

	assert.Nil(t, acc.Add(roundRec("balkanbet", 1)))
	assert.Empty(t, acc.Expired(time.Now()))

	expired := acc.Expired(time.Now().Add(150 * time.Millisecond))
	require.Len(t, expired, 1)
	assert.Equal(t, 1, expired[0].Size())
	assert.Zero(t, acc.Pending())
}

func TestAccumulator_ExpiredReleasesAllAgedBatchesInOneCall(t *testing.T) {
	acc := NewAccumulator(50, 100*time.Millisecond)

	// Three destinations opened back to back, all past the age threshold
	// together: one Expired call must flush every one of them.
	assert.Nil(t, acc.Add(roundRec("balkanbet", 1)))
	assert.Nil(t, acc.Add(roundRec("maxbet", 1)))
	assert.Nil(t, acc.Add(models.NewSnapshotRecord("balkanbet", time.Now(), models.Snapshot{RoundID: 1})))

	expired := acc.Expired(time.Now().Add(time.Second))
	require.Len(t, expired, 3)
	assert.Zero(t, acc.Pending())
	assert.Empty(t, acc.Expired(time.Now().Add(time.Second)))
}

func TestAccumulator_FlushAll(t *testing.T) {
	acc := NewAccumulator(50, time.Hour)

	for i := int64(1); i <= 10; i++ {
		require.Nil(t, acc.Add(roundRec("balkanbet", i)))
	}
	require.Nil(t, acc.Add(roundRec("maxbet", 1)))

	batches := acc.FlushAll()
	require.Len(t, batches, 2)
	for _, b := range batches {
		// Forced flush may release partial batches but never empty ones, and
		// never above the size threshold.
		assert.Greater(t, b.Size(), 0)
		assert.LessOrEqual(t, b.Size(), 50)
	}
	assert.Zero(t, acc.Pending())
	assert.Empty(t, acc.FlushAll())
}

func TestAccumulator_OrderPreservedWithinKey(t *testing.T) {
	acc := NewAccumulator(5, time.Hour)

	b := (*Batch)(nil)
	for i := int64(1); i <= 5; i++ {
		b = acc.Add(roundRec("balkanbet", i))
	}
	require.NotNil(t, b)
	for i, rec := range b.Items {
		assert.Equal(t, int64(i+1), rec.Round.RoundID)
	}
}
