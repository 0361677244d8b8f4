package brokerobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/broker"
	"signal-trader/internal/broker/paper"
	"signal-trader/internal/types"
)

type failing struct{ paper.Paper }

func (*failing) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{}, broker.Transient("place_order", errors.New("gateway timeout"))
}

func TestWrapPassesThrough(t *testing.T) {
	p := paper.New()
	b := Wrap("paper", p)

	_, err := b.Login(context.Background())
	require.NoError(t, err)

	resp, err := b.PlaceOrder(context.Background(), types.OrderReq{Symbol: "TCS", Side: types.ActionSell, Qty: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.OrderID)
	assert.Len(t, p.Orders(), 1)
}

func TestWrapKeepsErrorIdentity(t *testing.T) {
	b := Wrap("failing", &failing{})

	_, err := b.PlaceOrder(context.Background(), types.OrderReq{Symbol: "TCS", Side: types.ActionBuy, Qty: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrTransient)
}
