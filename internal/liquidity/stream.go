package liquidity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// forceOrderMessage mirrors Binance futures' !forceOrder@arr payload shape
// closely enough to extract symbol/price/qty/side.
type forceOrderMessage struct {
	Order struct {
		Symbol    string `json:"s"`
		Side      string `json:"S"`
		Price     string `json:"ap"`
		OrigQty   string `json:"q"`
		TradeTime int64  `json:"T"`
	} `json:"o"`
}

// StreamListener connects to the venue's aggregate liquidation stream and
// feeds every print into a Monitor, following the same dial/reconnect
// shape the whale-detection worker used for its own per-symbol depth
// stream. No heartbeat or ping is sent.
type StreamListener struct {
	URL     string
	Monitor *Monitor
	Log     zerolog.Logger
}

// Run dials the stream and blocks, reconnecting with a fixed backoff until
// ctx is cancelled.
func (l *StreamListener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := l.runOnce(ctx); err != nil {
			l.Log.Warn().Err(err).Str("url", l.URL).Msg("liquidation stream disconnected, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (l *StreamListener) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return fmt.Errorf("dial liquidation stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg forceOrderMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		evt, ok := toEvent(msg)
		if !ok {
			continue
		}
		l.Monitor.Add(evt)
	}
}

func toEvent(msg forceOrderMessage) (LiquidationEvent, bool) {
	if msg.Order.Symbol == "" {
		return LiquidationEvent{}, false
	}
	price := parseFloatSafe(msg.Order.Price)
	qty := parseFloatSafe(msg.Order.OrigQty)
	if price <= 0 || qty <= 0 {
		return LiquidationEvent{}, false
	}
	// A forced SELL liquidation closes a long position -> downward
	// pressure, so it is booked on the SHORT side of the heatmap and
	// vice versa, matching the teacher's whale-flow convention.
	side := model.Short
	if msg.Order.Side == "BUY" {
		side = model.Long
	}
	return LiquidationEvent{
		Symbol:    msg.Order.Symbol,
		Price:     price,
		Qty:       qty,
		Side:      side,
		Timestamp: time.UnixMilli(msg.Order.TradeTime),
	}, true
}

func parseFloatSafe(s string) float64 {
	var v float64
	_, err := fmt.Sscanf(s, "%f", &v)
	if err != nil {
		return 0
	}
	return v
}
