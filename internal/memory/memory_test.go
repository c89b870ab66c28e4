package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

func TestScoreObservation(t *testing.T) {
	// Quiet market: base score only.
	assert.InDelta(t, 0.5, ScoreObservation(Observation{RSI: 50, Return1: 0.01, VolumeRatio: 1.0}), 0.001)

	// Big move adds 0.2.
	assert.InDelta(t, 0.7, ScoreObservation(Observation{RSI: 50, Return1: 0.06, VolumeRatio: 1.0}), 0.001)

	// Oversold RSI adds 0.2.
	assert.InDelta(t, 0.7, ScoreObservation(Observation{RSI: 25, Return1: 0.0, VolumeRatio: 1.0}), 0.001)

	// Volume spike adds 0.3, crossover adds 0.3.
	assert.InDelta(t, 0.8, ScoreObservation(Observation{RSI: 50, VolumeRatio: 1.6}), 0.001)
	assert.InDelta(t, 0.8, ScoreObservation(Observation{RSI: 50, VolumeRatio: 1.0, Crossover: 1}), 0.001)

	// Everything at once clamps to 1.
	extreme := Observation{RSI: 85, Return1: -0.08, VolumeRatio: 2.0, Crossover: -1}
	assert.InDelta(t, 1.0, ScoreObservation(extreme), 0.001)
}

func TestScoreNews(t *testing.T) {
	assert.InDelta(t, 0.5, ScoreNews(0), 0.001)
	assert.InDelta(t, 0.75, ScoreNews(0.5), 0.001)
	assert.InDelta(t, 0.75, ScoreNews(-0.5), 0.001)
	assert.InDelta(t, 1.0, ScoreNews(1), 0.001)
}

func TestShortTermEvictsOldestFirst(t *testing.T) {
	s := NewStore(3, 10, 0.6)

	for i := 0; i < 5; i++ {
		s.Record(Entry{Timestamp: at(i), Symbol: fmt.Sprintf("S%d", i), Kind: KindPrice, Importance: 0.5})
	}

	short, long := s.Len()
	assert.Equal(t, 3, short)
	assert.Equal(t, 0, long)
}

func TestLongTermOnlyAboveThreshold(t *testing.T) {
	s := NewStore(10, 10, 0.6)

	s.Record(Entry{Timestamp: at(0), Symbol: "A", Kind: KindPrice, Importance: 0.5})
	s.Record(Entry{Timestamp: at(1), Symbol: "B", Kind: KindPrice, Importance: 0.6})
	s.Record(Entry{Timestamp: at(2), Symbol: "C", Kind: KindPrice, Importance: 0.9})

	_, long := s.Len()
	assert.Equal(t, 2, long)
}

func TestLongTermEvictsLowestImportance(t *testing.T) {
	s := NewStore(10, 2, 0.6)

	s.Record(Entry{Timestamp: at(0), Symbol: "LOW", Kind: KindPrice, Importance: 0.6})
	s.Record(Entry{Timestamp: at(1), Symbol: "HIGH", Kind: KindPrice, Importance: 0.9})
	s.Record(Entry{Timestamp: at(2), Symbol: "MID", Kind: KindPrice, Importance: 0.7})

	recalled := s.Recall(0)
	symbols := make(map[string]bool)
	for _, e := range recalled {
		symbols[e.Symbol] = true
	}
	assert.True(t, symbols["HIGH"])
	assert.True(t, symbols["MID"])
	// LOW also lives in the short-term tier, so it can still be recalled;
	// the long-term tier itself holds only the two survivors.
	_, long := s.Len()
	assert.Equal(t, 2, long)
}

func TestLongTermEvictionTieBreaksOldest(t *testing.T) {
	s := NewStore(10, 2, 0.6)

	s.Record(Entry{Timestamp: at(0), Symbol: "OLD", Kind: KindPrice, Importance: 0.7})
	s.Record(Entry{Timestamp: at(1), Symbol: "NEW", Kind: KindPrice, Importance: 0.7})
	s.Record(Entry{Timestamp: at(2), Symbol: "TOP", Kind: KindPrice, Importance: 0.9})

	// OLD and NEW tie at 0.7; the older one is evicted.
	found := map[string]bool{}
	for _, e := range s.Recall(0) {
		found[e.Symbol] = true
	}
	assert.True(t, found["NEW"])
	assert.True(t, found["TOP"])
}

func TestRecallOrderingAndLimit(t *testing.T) {
	s := NewStore(10, 10, 0.6)

	s.Record(Entry{Timestamp: at(0), Symbol: "A", Kind: KindPrice, Importance: 0.7})
	s.Record(Entry{Timestamp: at(1), Symbol: "B", Kind: KindPrice, Importance: 0.9})
	s.Record(Entry{Timestamp: at(2), Symbol: "C", Kind: KindPrice, Importance: 0.7})
	s.Record(Entry{Timestamp: at(3), Symbol: "D", Kind: KindPrice, Importance: 0.3})

	recalled := s.Recall(0)
	require.Len(t, recalled, 3)
	assert.Equal(t, "B", recalled[0].Symbol)
	// Equal importance sorts most-recent first.
	assert.Equal(t, "C", recalled[1].Symbol)
	assert.Equal(t, "A", recalled[2].Symbol)

	assert.Len(t, s.Recall(2), 2)
}

func TestRecallDeduplicatesAcrossTiers(t *testing.T) {
	s := NewStore(10, 10, 0.6)

	// Importance 0.9 lands in both tiers; recall yields it once.
	s.Record(Entry{Timestamp: at(0), Symbol: "A", Kind: KindTrade, Importance: 0.9})

	assert.Len(t, s.Recall(0), 1)
}

func TestRecallKeepsDistinctEntriesSharingTimestamp(t *testing.T) {
	s := NewStore(10, 10, 0.6)

	// Two different articles arrive in one step with identical timestamp,
	// symbol, and kind; both clear the threshold and both come back.
	s.RecordNews(at(0), "", "RBI holds repo rate", 0.8)
	s.RecordNews(at(0), "", "Monsoon forecast upgraded", 0.8)

	recalled := s.Recall(0)
	require.Len(t, recalled, 2)
	assert.NotEqual(t, recalled[0].Payload, recalled[1].Payload)
}

func TestRecordTradeUsesFixedImportance(t *testing.T) {
	s := NewStore(10, 10, 0.6)
	s.RecordTrade(at(0), "RELIANCE", "BUY 100 @ 2800")

	recalled := s.Recall(0)
	require.Len(t, recalled, 1)
	assert.Equal(t, KindTrade, recalled[0].Kind)
	assert.InDelta(t, TradeImportance, recalled[0].Importance, 0.001)
}

func TestRecallSurvivesShortTermEviction(t *testing.T) {
	s := NewStore(2, 10, 0.6)

	s.RecordTrade(at(0), "TCS", "BUY")
	for i := 1; i <= 5; i++ {
		s.Record(Entry{Timestamp: at(i), Symbol: "X", Kind: KindPrice, Importance: 0.4})
	}

	// The trade fell out of the short-term ring but persists long term.
	recalled := s.Recall(0)
	require.Len(t, recalled, 1)
	assert.Equal(t, "TCS", recalled[0].Symbol)
}
