package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

func TestComputeFeeMatchesSpecFormula(t *testing.T) {
	trade := domain.TradeMatch{Price: 1500, Quantity: 100_000, ExecutedAt: time.Now()} // 15.00 * 100.000 kWh
	feeRate := decimal.NewFromFloat(0.0025)                                           // 25 bps

	fee, sellerReceives := ComputeFee(trade, feeRate)

	notional := decimal.NewFromInt(15).Mul(decimal.NewFromInt(100))
	wantFee := notional.Mul(feeRate).RoundBank(2)
	if !fee.Equal(wantFee) {
		t.Errorf("expected fee %s, got %s", wantFee, fee)
	}
	if !sellerReceives.Equal(notional.Sub(wantFee)) {
		t.Errorf("expected seller_receives %s, got %s", notional.Sub(wantFee), sellerReceives)
	}
}

func TestComputeFeeZeroRateYieldsFullNotional(t *testing.T) {
	trade := domain.TradeMatch{Price: 2000, Quantity: 50_000}
	fee, sellerReceives := ComputeFee(trade, decimal.Zero)

	if !fee.IsZero() {
		t.Errorf("expected zero fee, got %s", fee)
	}
	if !sellerReceives.Equal(trade.Notional()) {
		t.Errorf("expected seller_receives == notional, got %s vs %s", sellerReceives, trade.Notional())
	}
}
