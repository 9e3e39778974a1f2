package venue

import "math/big"

const bpsDenominator = 10_000

// ConstantProductCurve prices swaps against a Uniswap-v2-style pool using the
// x*y=k invariant with the fee taken from the input amount. Instances are
// immutable snapshots of the reserves at update time, so edges built from
// them are safe to share across graph snapshots.
type ConstantProductCurve struct {
	ReserveIn  *big.Int
	ReserveOut *big.Int
	FeeBps     int64
}

// AmountOut computes reserveOut * amountInAfterFee / (reserveIn + amountInAfterFee)
// in integer arithmetic, rounding down as the on-chain router does.
func (c ConstantProductCurve) AmountOut(amountIn *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		c.ReserveIn == nil || c.ReserveIn.Sign() <= 0 ||
		c.ReserveOut == nil || c.ReserveOut.Sign() <= 0 {
		return new(big.Int)
	}

	inAfterFee := new(big.Int).Mul(amountIn, big.NewInt(bpsDenominator-c.FeeBps))
	num := new(big.Int).Mul(inAfterFee, c.ReserveOut)
	den := new(big.Int).Mul(c.ReserveIn, big.NewInt(bpsDenominator))
	den.Add(den, inAfterFee)
	return num.Div(num, den)
}

// QuotedRateCurve prices swaps at a flat posted rate with a proportional fee,
// for venues that expose a quote API rather than on-chain reserves. The rate
// is RateNum/RateDen output units per input unit.
type QuotedRateCurve struct {
	RateNum *big.Int
	RateDen *big.Int
	FeeBps  int64
}

// AmountOut computes amountIn * rate * (1 - fee), rounding down.
func (c QuotedRateCurve) AmountOut(amountIn *big.Int) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		c.RateNum == nil || c.RateNum.Sign() <= 0 ||
		c.RateDen == nil || c.RateDen.Sign() <= 0 {
		return new(big.Int)
	}

	out := new(big.Int).Mul(amountIn, c.RateNum)
	out.Mul(out, big.NewInt(bpsDenominator-c.FeeBps))
	out.Div(out, new(big.Int).Mul(c.RateDen, big.NewInt(bpsDenominator)))
	return out
}
