package exchange

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_market_pulse/internal/domain"
	"go.uber.org/zap"
)

// ConnState is the stream connection state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	reconnectBase = 1 * time.Second
	reconnectMax  = 15 * time.Second
)

// wsStream is the shared reconnect loop for one websocket endpoint.
// Backoff doubles per failed attempt from 1s up to 15s and resets to 1s
// after a successful connect. Stop is idempotent.
type wsStream struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
	handle func(message []byte)

	mu    sync.Mutex
	state ConnState
	conn  *websocket.Conn

	stopOnce sync.Once
	stopped  chan struct{}

	// sleep is swapped out by stream tests to avoid real waits.
	sleep func(d time.Duration) bool
}

func newWSStream(url string, logger *zap.Logger, handle func([]byte)) *wsStream {
	s := &wsStream{
		url:     url,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		handle:  handle,
		stopped: make(chan struct{}),
	}
	s.sleep = s.waitOrStop
	return s
}

func (s *wsStream) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *wsStream) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// waitOrStop sleeps for d unless the stream is stopped first.
// Returns false when the stream should shut down.
func (s *wsStream) waitOrStop(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.stopped:
		return false
	}
}

func (s *wsStream) run() {
	attempts := 0
	for {
		select {
		case <-s.stopped:
			return
		default:
		}

		s.setState(StateConnecting)
		conn, _, err := s.dialer.Dial(s.url, nil)
		if err != nil {
			s.setState(StateDisconnected)
			delay := backoffDelay(attempts)
			attempts++
			s.logger.Warn("stream dial failed",
				zap.String("url", s.url), zap.Duration("retry_in", delay), zap.Error(err))
			if !s.sleep(delay) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.state = StateConnected
		s.mu.Unlock()
		attempts = 0
		s.logger.Info("stream connected", zap.String("url", s.url))

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.state = StateDisconnected
		s.mu.Unlock()

		// A dropped connection waits like a failed dial. A server that
		// accepts the upgrade and immediately closes would otherwise be
		// redialed at network speed.
		delay := backoffDelay(attempts)
		attempts++
		s.logger.Warn("stream disconnected",
			zap.String("url", s.url), zap.Duration("retry_in", delay))
		if !s.sleep(delay) {
			return
		}
	}
}

func (s *wsStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopped:
			default:
				s.logger.Warn("stream read error", zap.String("url", s.url), zap.Error(err))
			}
			return
		}
		s.handle(message)
	}
}

func (s *wsStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.state = StateDisconnected
		s.mu.Unlock()
	})
}

func backoffDelay(attempts int) time.Duration {
	d := reconnectBase << uint(attempts)
	if d > reconnectMax || d <= 0 {
		return reconnectMax
	}
	return d
}

// miniTickerFrame is one element of the !miniTicker@arr payload.
type miniTickerFrame struct {
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	QuoteVolume string `json:"q"`
}

// MiniTickerStream turns the combined mini-ticker feed into domain Ticks.
type MiniTickerStream struct {
	ws     *wsStream
	onTick func(domain.Tick)
	once   sync.Once
}

func NewMiniTickerStream(wsBaseURL string, logger *zap.Logger) *MiniTickerStream {
	if wsBaseURL == "" {
		wsBaseURL = DefaultWSURL
	}
	m := &MiniTickerStream{}
	m.ws = newWSStream(wsBaseURL+"/!miniTicker@arr", logger, m.handleMessage)
	return m
}

func (m *MiniTickerStream) Start(onTick func(domain.Tick)) {
	m.once.Do(func() {
		m.onTick = onTick
		go m.ws.run()
	})
}

func (m *MiniTickerStream) Stop() { m.ws.Stop() }

// State exposes the connection state for the status endpoint.
func (m *MiniTickerStream) State() ConnState { return m.ws.State() }

func (m *MiniTickerStream) handleMessage(message []byte) {
	var frames []miniTickerFrame
	if err := json.Unmarshal(message, &frames); err != nil {
		// Non-array control frames are expected occasionally; skip them.
		return
	}

	for _, f := range frames {
		if !domain.IsUSDTPair(f.Symbol) || domain.IsLeveraged(f.Symbol) {
			continue
		}
		closeP, err := strconv.ParseFloat(f.Close, 64)
		if err != nil || closeP <= 0 {
			continue
		}
		open, _ := strconv.ParseFloat(f.Open, 64)
		quote, _ := strconv.ParseFloat(f.QuoteVolume, 64)

		var pct float64
		if open > 0 {
			pct = (closeP - open) / open * 100
		}

		m.onTick(domain.Tick{
			ID:             domain.CoinID(f.Symbol),
			Price:          closeP,
			ChangePct24h:   pct,
			VolumeQuote24h: quote,
		})
	}
}

// klineFrame is the payload of a <symbol>@kline_<interval> event.
type klineFrame struct {
	Kline struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
	} `json:"k"`
}

// KlineStream delivers live candles for a single symbol/interval pair.
type KlineStream struct {
	ws       *wsStream
	onCandle func(domain.Candle)
	once     sync.Once
}

func NewKlineStream(wsBaseURL, symbol, interval string, logger *zap.Logger) *KlineStream {
	if wsBaseURL == "" {
		wsBaseURL = DefaultWSURL
	}
	k := &KlineStream{}
	streamName := "/" + strings.ToLower(symbol) + "@kline_" + interval
	k.ws = newWSStream(wsBaseURL+streamName, logger, k.handleMessage)
	return k
}

func (k *KlineStream) Start(onCandle func(domain.Candle)) {
	k.once.Do(func() {
		k.onCandle = onCandle
		go k.ws.run()
	})
}

func (k *KlineStream) Stop() { k.ws.Stop() }

func (k *KlineStream) handleMessage(message []byte) {
	var frame klineFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return
	}
	if frame.Kline.OpenTime == 0 {
		return
	}

	open, err1 := strconv.ParseFloat(frame.Kline.Open, 64)
	high, err2 := strconv.ParseFloat(frame.Kline.High, 64)
	low, err3 := strconv.ParseFloat(frame.Kline.Low, 64)
	closeP, err4 := strconv.ParseFloat(frame.Kline.Close, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return
	}
	volume, _ := strconv.ParseFloat(frame.Kline.Volume, 64)

	k.onCandle(domain.Candle{
		Time:   frame.Kline.OpenTime,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closeP,
		Volume: volume,
	})
}
