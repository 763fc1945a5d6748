package types

import (
	stdmath "math"
	"math/big"

	"cosmossdk.io/math"
	"github.com/pkg/errors"
)

var bpsScale = math.NewInt(BasisPoints)

// DeviationBps returns |a - b| * 10000 / b, saturating at MaxInt64.
func DeviationBps(a, b math.Int) (int64, error) {
	if b.IsNil() || !b.IsPositive() {
		return 0, errors.New("deviation base must be positive")
	} else if a.IsNil() {
		return 0, errors.New("deviation value is nil")
	}

	return ratioBps(a.Sub(b).Abs(), b)
}

// SpreadBps returns (max - min) * 10000 / median.
func SpreadBps(lo, hi, median math.Int) (int64, error) {
	if median.IsNil() || !median.IsPositive() {
		return 0, errors.New("spread base must be positive")
	}

	return ratioBps(hi.Sub(lo).Abs(), median)
}

func ratioBps(diff, base math.Int) (int64, error) {
	scaled, err := diff.SafeMul(bpsScale)
	if err != nil {
		return 0, errors.Wrap(err, "deviation overflow")
	}

	q := scaled.Quo(base)
	if !q.IsInt64() {
		return stdmath.MaxInt64, nil
	}

	return q.Int64(), nil
}

// RescalePrice converts price from one decimal scale to another. Scaling down truncates.
func RescalePrice(price math.Int, from, to int32) (math.Int, error) {
	if price.IsNil() {
		return price, errors.New("price is nil")
	} else if from < 0 || to < 0 {
		return price, errors.Errorf("negative decimals %d -> %d", from, to)
	}

	switch {
	case from == to:
		return price, nil
	case to > from:
		scaled, err := price.SafeMul(pow10(to - from))
		if err != nil {
			return price, errors.Wrapf(err, "failed to rescale price from %d to %d decimals", from, to)
		}

		return scaled, nil
	default:
		return price.Quo(pow10(from - to)), nil
	}
}

func pow10(n int32) math.Int {
	return math.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}
