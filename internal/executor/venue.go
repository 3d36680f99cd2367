package executor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// Venue is the narrow order-placement surface the executor depends on —
// distinct from marketdata.Exchange, which is read-only.
type Venue interface {
	PlaceOrder(ctx context.Context, intent model.OrderIntent) (exchangeOrderID string, err error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
}

// BinanceVenue places orders through the go-binance/v2/futures client,
// tagging every request with the intent's idempotency key as the client
// order ID so a retried Execute call can never double-place.
type BinanceVenue struct {
	client *futures.Client
}

// NewBinanceVenue adapts an already-constructed futures client.
func NewBinanceVenue(client *futures.Client) *BinanceVenue {
	return &BinanceVenue{client: client}
}

// PlaceOrder submits intent as a limit (GTX post-only when PostOnly is set)
// or stop-market order, matching the order types the planner's entry legs
// produce.
func (v *BinanceVenue) PlaceOrder(ctx context.Context, intent model.OrderIntent) (string, error) {
	side := futures.SideTypeBuy
	if intent.Side == model.SideSell {
		side = futures.SideTypeSell
	}

	svc := v.client.NewCreateOrderService().
		Symbol(intent.Symbol).
		Side(side).
		Quantity(strconv.FormatFloat(intent.Qty, 'f', -1, 64)).
		NewClientOrderID(intent.IdempotencyKey)

	if intent.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	switch intent.Type {
	case model.EntryLimit:
		tif := futures.TimeInForceTypeGTC
		if intent.PostOnly {
			tif = futures.TimeInForceTypeGTX
		}
		svc = svc.Type(futures.OrderTypeLimit).TimeInForce(tif).
			Price(strconv.FormatFloat(intent.Price, 'f', -1, 64))
	case model.EntryStop:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(strconv.FormatFloat(intent.StopPx, 'f', -1, 64))
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return "", classifyOrderErr(err)
	}
	return fmt.Sprintf("%d", res.OrderID), nil
}

// CancelOrder cancels a still-working order by its exchange-assigned ID.
func (v *BinanceVenue) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return model.WrapError(model.ErrDataShape, "invalid exchange order id", err)
	}
	_, err = v.client.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return classifyOrderErr(err)
	}
	return nil
}

func classifyOrderErr(err error) error {
	return model.WrapError(model.ErrExchangeFatal, "order placement failed", err)
}
