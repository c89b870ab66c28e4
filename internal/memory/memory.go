// Package memory implements the layered event store that feeds past
// evidence back into trading decisions.
package memory

import (
	"sort"
	"sync"
	"time"
)

// Kind classifies a memory entry.
type Kind string

const (
	KindPrice     Kind = "PRICE"
	KindNews      Kind = "NEWS"
	KindTechnical Kind = "TECHNICAL"
	KindTrade     Kind = "TRADE"
)

// Entry is an immutable memory record. Eviction is the only form of
// destruction; entries are never edited after creation.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Kind       Kind      `json:"kind"`
	Payload    any       `json:"payload"`
	Importance float64   `json:"importance"`

	// seq identifies the record across tiers; the short- and long-term
	// copies of one Record call share it. Distinct entries never do, even
	// when timestamp, symbol, and kind all collide.
	seq uint64
}

// Observation is the payload for PRICE and TECHNICAL entries.
type Observation struct {
	Price       float64 `json:"price"`
	Return1     float64 `json:"return_1"`
	RSI         float64 `json:"rsi"`
	VolumeRatio float64 `json:"volume_ratio"`
	Crossover   int     `json:"crossover"`
}

// Importance scoring policy. Reproduced exactly for test determinism.
const (
	baseScore       = 0.5
	returnBonus     = 0.2
	oscillatorBonus = 0.2
	volumeBonus     = 0.3
	crossoverBonus  = 0.3

	bigMoveThreshold  = 0.05 // single-period return magnitude
	oscillatorLow     = 30
	oscillatorHigh    = 70
	volumeSpikeFactor = 1.5

	// TradeImportance scores TRADE entries; trades are never forgotten
	// cheaply.
	TradeImportance = 0.9
)

// ScoreObservation computes the importance of a market observation.
func ScoreObservation(o Observation) float64 {
	score := baseScore
	if o.Return1 > bigMoveThreshold || o.Return1 < -bigMoveThreshold {
		score += returnBonus
	}
	if o.RSI < oscillatorLow || o.RSI > oscillatorHigh {
		score += oscillatorBonus
	}
	if o.VolumeRatio > volumeSpikeFactor {
		score += volumeBonus
	}
	if o.Crossover != 0 {
		score += crossoverBonus
	}
	return clamp(score)
}

// ScoreNews scores a news entry by sentiment magnitude.
func ScoreNews(sentiment float64) float64 {
	if sentiment < 0 {
		sentiment = -sentiment
	}
	return clamp(baseScore + sentiment/2)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Store is the dual-tier memory: a capacity-bounded short-term ring
// (oldest-first eviction) plus a long-term tier holding entries at or above
// the relevance threshold (lowest-importance-then-oldest eviction).
type Store struct {
	mu        sync.RWMutex
	shortTerm []Entry
	longTerm  []Entry
	shortCap  int
	longCap   int
	threshold float64
	nextSeq   uint64
}

func NewStore(shortCap, longCap int, threshold float64) *Store {
	if shortCap < 1 {
		shortCap = 1
	}
	if longCap < 1 {
		longCap = 1
	}
	return &Store{
		shortTerm: make([]Entry, 0, shortCap),
		longTerm:  make([]Entry, 0, longCap),
		shortCap:  shortCap,
		longCap:   longCap,
		threshold: threshold,
	}
}

// Record inserts the entry into the short-term ring and, when important
// enough, into the long-term tier, evicting per tier policy.
func (s *Store) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	e.seq = s.nextSeq

	s.shortTerm = append(s.shortTerm, e)
	if len(s.shortTerm) > s.shortCap {
		s.shortTerm = s.shortTerm[len(s.shortTerm)-s.shortCap:]
	}

	if e.Importance >= s.threshold {
		s.longTerm = append(s.longTerm, e)
		if len(s.longTerm) > s.longCap {
			s.evictLongTerm()
		}
	}
}

// evictLongTerm drops the lowest-importance entry, breaking ties by age
// (oldest first). Called with the lock held.
func (s *Store) evictLongTerm() {
	victim := 0
	for i := 1; i < len(s.longTerm); i++ {
		if s.longTerm[i].Importance < s.longTerm[victim].Importance {
			victim = i
		}
		// Equal importance: the earlier index is older, keep it as victim.
	}
	s.longTerm = append(s.longTerm[:victim], s.longTerm[victim+1:]...)
}

// RecordObservation scores and records a market observation.
func (s *Store) RecordObservation(ts time.Time, symbol string, kind Kind, o Observation) {
	s.Record(Entry{
		Timestamp:  ts,
		Symbol:     symbol,
		Kind:       kind,
		Payload:    o,
		Importance: ScoreObservation(o),
	})
}

// RecordNews scores and records a news item.
func (s *Store) RecordNews(ts time.Time, symbol string, payload any, sentiment float64) {
	s.Record(Entry{
		Timestamp:  ts,
		Symbol:     symbol,
		Kind:       KindNews,
		Payload:    payload,
		Importance: ScoreNews(sentiment),
	})
}

// RecordTrade records an executed trade at the fixed trade importance.
func (s *Store) RecordTrade(ts time.Time, symbol string, payload any) {
	s.Record(Entry{
		Timestamp:  ts,
		Symbol:     symbol,
		Kind:       KindTrade,
		Payload:    payload,
		Importance: TradeImportance,
	})
}

// Recall returns entries at or above the relevance threshold from both
// tiers, most-important then most-recent first, deduplicated across tiers.
// limit <= 0 returns all matches.
func (s *Store) Recall(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uint64]struct{})
	var out []Entry
	for _, tier := range [][]Entry{s.shortTerm, s.longTerm} {
		for _, e := range tier {
			if e.Importance < s.threshold {
				continue
			}
			if _, dup := seen[e.seq]; dup {
				continue
			}
			seen[e.seq] = struct{}{}
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the current sizes of the short- and long-term tiers.
func (s *Store) Len() (short, long int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shortTerm), len(s.longTerm)
}

// Highlights returns up to n recalled entries for snapshot publication.
func (s *Store) Highlights(n int) []Entry {
	return s.Recall(n)
}
