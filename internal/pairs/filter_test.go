package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_DropsStableToStable(t *testing.T) {
	in := []string{"BTC/USDT", "USDC/USDT", "ETH/USDT", "DAI/USDC"}
	out := Filter(in, true, nil)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
}

func TestFilter_CustomExclude(t *testing.T) {
	in := []string{"BTC/USDT", "LEVERAGED3LBTC/USDT", "ETH/USDT"}
	out := Filter(in, false, []string{"LEVERAGED"})
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
}

func TestFilter_PreservesOrder(t *testing.T) {
	in := []string{"Z/USDT", "A/USDT", "M/USDT"}
	out := Filter(in, true, nil)
	assert.Equal(t, in, out)
}

func TestTopN_Truncates(t *testing.T) {
	in := []string{"A/USDT", "B/USDT", "C/USDT", "D/USDT"}
	out := TopN(in, true, nil, 2)
	assert.Equal(t, []string{"A/USDT", "B/USDT"}, out)
}
