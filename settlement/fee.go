package settlement

import (
	"github.com/shopspring/decimal"

	"kwh-exchange/domain"
)

// currencyScale is the number of decimal places fees and proceeds are
// rounded to — ordinary currency units, not the fixed-point cents scale
// price/quantity use internally.
const currencyScale = 2

// ComputeFee returns (fee, sellerReceives) for a trade at the given
// fee_rate: fee = quantity·price·fee_rate, rounded to currency scale;
// seller_receives = quantity·price - fee. feeRate is a fraction (e.g.
// 0.0025 for 25 basis points), not a percentage.
func ComputeFee(trade domain.TradeMatch, feeRate decimal.Decimal) (fee, sellerReceives decimal.Decimal) {
	notional := trade.Notional()
	fee = notional.Mul(feeRate).RoundBank(currencyScale)
	sellerReceives = notional.Sub(fee)
	return fee, sellerReceives
}
