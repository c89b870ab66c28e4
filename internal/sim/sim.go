// Package sim runs the per-step trading pipeline: calendar gate, price
// fetch, indicators, memory, strategy, risk filter, ledger apply, publish.
// One background worker owns all mutable core state for the run.
package sim

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/omkale/finpup/internal/indicator"
	"github.com/omkale/finpup/internal/market"
	"github.com/omkale/finpup/internal/memory"
	"github.com/omkale/finpup/internal/news"
	"github.com/omkale/finpup/internal/portfolio"
	"github.com/omkale/finpup/internal/risk"
	"github.com/omkale/finpup/internal/storage"
	"github.com/omkale/finpup/internal/strategy"
)

// Mode selects the data feed behavior for a run.
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
)

// State is the loop lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// ErrAlreadyRunning reports a Start while the loop is not idle; the call
// is a no-op.
var ErrAlreadyRunning = errors.New("simulation already running")

// Snapshot is the immutable per-step view published to observers.
// Delivery is at-least-once; consumers must be idempotent against
// repeated identical snapshots.
type Snapshot struct {
	Step             int                `json:"step"`
	Time             time.Time          `json:"time"`
	Mode             Mode               `json:"mode"`
	MarketStatus     market.Status      `json:"market_status"`
	Portfolio        portfolio.Snapshot `json:"portfolio"`
	MemoryHighlights []memory.Entry     `json:"memory_highlights"`
}

// Options configures a run.
type Options struct {
	Mode         Mode
	Symbols      []string
	Lookback     int
	StepInterval time.Duration
	RetryBackoff time.Duration
	RecallLimit  int
	Durable      bool
	RiskProfile  string
}

// Deps are the collaborators the loop orchestrates. News and Store may be
// nil; everything else is required.
type Deps struct {
	Feed     market.Feed
	Calendar *market.Calendar
	News     news.Source
	Strategy strategy.Strategy
	Filter   *risk.Filter
	Ledger   *portfolio.Ledger
	Memory   *memory.Store
	Store    *storage.Store
}

type Simulation struct {
	opts Options
	deps Deps

	mu     sync.Mutex
	state  State
	stopCh chan struct{}
	doneCh chan struct{}
	step   int

	subMu sync.Mutex
	subs  []chan Snapshot
}

func New(opts Options, deps Deps) (*Simulation, error) {
	if deps.Feed == nil || deps.Calendar == nil || deps.Strategy == nil ||
		deps.Filter == nil || deps.Ledger == nil || deps.Memory == nil {
		return nil, errors.New("missing required simulation collaborators")
	}
	if opts.Lookback < indicator.MinLookback {
		opts.Lookback = indicator.MinLookback
	}
	if opts.StepInterval <= 0 {
		opts.StepInterval = time.Minute
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 10 * time.Second
	}
	if opts.RecallLimit <= 0 {
		opts.RecallLimit = 20
	}
	return &Simulation{opts: opts, deps: deps}, nil
}

func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers an observer for step snapshots. The channel is
// buffered; slow consumers see the most recent snapshots.
func (s *Simulation) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Simulation) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Full buffer: drop the oldest so the latest state lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Start transitions IDLE -> RUNNING and launches the worker. A Start while
// running is rejected as a no-op with ErrAlreadyRunning.
func (s *Simulation) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning || s.state == StateStopping {
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.run()
	log.Printf("simulation started in %s mode (%s strategy)", s.opts.Mode, s.deps.Strategy.Name())
	return nil
}

// Stop requests a cooperative shutdown and waits for the worker to drain
// the current step. The ledger is always left fully applied.
func (s *Simulation) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	if s.state == StateStopping {
		s.state = StateIdle
	}
	s.mu.Unlock()
	log.Printf("simulation stopped")
}

// Wait blocks until the worker exits (backtests reach DONE on their own).
func (s *Simulation) Wait() {
	s.mu.Lock()
	done := s.doneCh
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Simulation) run() {
	defer close(s.doneCh)

	for {
		// Stop is honored only at step boundaries, never mid-mutation.
		select {
		case <-s.stopCh:
			return
		default:
		}

		ts, ok := s.deps.Feed.Advance()
		if !ok {
			// Finite feed exhausted: terminal state for backtests.
			s.mu.Lock()
			s.state = StateDone
			s.mu.Unlock()
			log.Printf("feed exhausted after %d steps", s.step)
			return
		}

		status := s.deps.Calendar.Status(ts)
		if !status.Open() {
			if s.opts.Mode == ModeBacktest {
				// Replay simply skips non-trading timestamps.
				continue
			}
			log.Printf("market closed (%s), next open %s", status.Reason, status.NextChange.Format(time.RFC3339))
			// No quotes while the market is closed; the snapshot values
			// holdings at average cost.
			s.publish(s.snapshot(ts, status, nil))
			if s.sleep(s.opts.StepInterval) {
				return
			}
			continue
		}

		s.doStep(ts, status)

		if s.opts.Mode != ModeBacktest {
			if s.sleep(s.opts.StepInterval) {
				return
			}
		}
	}
}

// sleep waits d or until stop; returns true when stopping.
func (s *Simulation) sleep(d time.Duration) bool {
	select {
	case <-s.stopCh:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *Simulation) doStep(ts time.Time, status market.Status) {
	ctx := context.Background()
	s.step++

	// Recall before this step's records are written: each decision is a
	// function of prior evidence only.
	recalled := s.deps.Memory.Recall(s.opts.RecallLimit)

	articles := s.fetchNews(ctx)

	features, fetchErrors := s.computeFeatures(ctx)
	if len(features) == 0 && fetchErrors > 0 {
		// Transient source failure; back off before the next step.
		log.Printf("step %d: no usable market data (%d fetch errors)", s.step, fetchErrors)
		if s.opts.Mode != ModeBacktest {
			s.sleep(s.opts.RetryBackoff)
		}
		return
	}

	s.recordObservations(ts, features)
	s.recordNews(ts, articles)

	snap := s.deps.Ledger.Snapshot(s.priceFn(ctx))

	intents := s.deps.Strategy.Decide(ctx, features, snap, recalled, articles)
	intents = s.deps.Filter.Apply(intents, snap)
	s.applyIntents(ts, intents)

	final := s.snapshot(ts, status, s.priceFn(ctx))
	s.publish(final)

	if s.opts.Durable {
		s.persist(final)
	}
}

func (s *Simulation) fetchNews(ctx context.Context) []news.Article {
	if s.deps.News == nil {
		return nil
	}
	articles, err := s.deps.News.Recent(ctx, "")
	if err != nil {
		// Degraded step: decisions proceed without news.
		log.Printf("step %d: news fetch failed: %v", s.step, err)
		return nil
	}
	return articles
}

func (s *Simulation) computeFeatures(ctx context.Context) (map[string]*indicator.Features, int) {
	features := make(map[string]*indicator.Features, len(s.opts.Symbols))
	fetchErrors := 0

	for _, sym := range s.opts.Symbols {
		bars, err := s.deps.Feed.Window(ctx, sym, s.opts.Lookback)
		if err != nil {
			fetchErrors++
			log.Printf("step %d: window fetch for %s failed: %v", s.step, sym, err)
			continue
		}
		f, err := indicator.Compute(bars)
		if err != nil {
			if !errors.Is(err, indicator.ErrInsufficientData) {
				log.Printf("step %d: indicators for %s failed: %v", s.step, sym, err)
			}
			// Insufficient data skips the symbol for this step only.
			continue
		}
		features[sym] = f
	}
	return features, fetchErrors
}

func (s *Simulation) recordObservations(ts time.Time, features map[string]*indicator.Features) {
	symbols := make([]string, 0, len(features))
	for sym := range features {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		f := features[sym]
		obs := memory.Observation{
			Price:       f.Price,
			Return1:     f.Return1,
			RSI:         f.RSI,
			VolumeRatio: f.VolumeRatio,
			Crossover:   f.Crossover,
		}
		s.deps.Memory.RecordObservation(ts, sym, memory.KindPrice, obs)
		if f.Crossover != indicator.CrossNone {
			s.deps.Memory.RecordObservation(ts, sym, memory.KindTechnical, obs)
		}
	}
}

func (s *Simulation) recordNews(ts time.Time, articles []news.Article) {
	for _, a := range articles {
		s.deps.Memory.RecordNews(ts, "", a, news.Sentiment(a))
	}
}

func (s *Simulation) applyIntents(ts time.Time, intents map[string]strategy.Intent) {
	symbols := make([]string, 0, len(intents))
	for sym := range intents {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		intent := intents[sym]
		var applied bool
		switch intent.Side {
		case portfolio.SideBuy:
			applied = s.deps.Ledger.Buy(sym, intent.Quantity, intent.Price, intent.Reason)
		case portfolio.SideSell:
			applied = s.deps.Ledger.Sell(sym, intent.Quantity, intent.Price, intent.Reason)
		}
		if !applied {
			log.Printf("step %d: %s %s rejected by ledger", s.step, intent.Side, sym)
			continue
		}

		log.Printf("step %d: %s %d %s @ %.2f (%s)", s.step, intent.Side, intent.Quantity, sym, intent.Price, intent.Reason)
		s.deps.Memory.RecordTrade(ts, sym, intent)

		if s.deps.Store != nil {
			trades := s.deps.Ledger.Trades()
			if len(trades) > 0 {
				if err := s.deps.Store.AppendTrade(trades[len(trades)-1]); err != nil {
					log.Printf("step %d: journal append failed: %v", s.step, err)
				}
			}
		}
	}
}

func (s *Simulation) priceFn(ctx context.Context) portfolio.PriceFn {
	return func(symbol string) (float64, bool) {
		price, err := s.deps.Feed.CurrentPrice(ctx, symbol)
		if err != nil {
			return 0, false
		}
		return price, true
	}
}

func (s *Simulation) snapshot(ts time.Time, status market.Status, price portfolio.PriceFn) Snapshot {
	return Snapshot{
		Step:             s.step,
		Time:             ts,
		Mode:             s.opts.Mode,
		MarketStatus:     status,
		Portfolio:        s.deps.Ledger.Snapshot(price),
		MemoryHighlights: s.deps.Memory.Highlights(5),
	}
}

func (s *Simulation) persist(snap Snapshot) {
	if s.deps.Store == nil {
		return
	}
	err := s.deps.Store.SaveState(storage.PersistedState{
		Cash:           snap.Portfolio.Cash,
		InitialCapital: snap.Portfolio.InitialCapital,
		RiskProfile:    s.opts.RiskProfile,
		Positions:      s.deps.Ledger.Positions(),
		UpdatedAt:      snap.Time,
	})
	if err != nil {
		log.Printf("step %d: persist state failed: %v", s.step, err)
	}
}
