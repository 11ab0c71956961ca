package execution

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxBatches caps how many slices one order is split into.
const MaxBatches = 5

// sizeScale is the number of decimal places a batch size is rounded to.
const sizeScale = 8

// Batch is one time-staggered slice of an order.
type Batch struct {
	Index int
	Total int
	Size  decimal.Decimal
	Delay time.Duration
}

// BuildBatches splits total into min(batchCount, MaxBatches) slices. Every
// slice but the last gets total/count rounded to sizeScale places; the last
// absorbs the remainder so the sizes sum to total exactly. Slice i is delayed
// by i × interval.
func BuildBatches(total decimal.Decimal, batchCount int, interval time.Duration) []Batch {
	count := batchCount
	if count > MaxBatches {
		count = MaxBatches
	}
	if count < 1 {
		count = 1
	}
	if interval < 0 {
		interval = 0
	}

	base := total.DivRound(decimal.NewFromInt(int64(count)), sizeScale)
	batches := make([]Batch, count)
	for i := 0; i < count; i++ {
		size := base
		if i == count-1 {
			size = total.Sub(base.Mul(decimal.NewFromInt(int64(count - 1))))
		}
		batches[i] = Batch{
			Index: i,
			Total: count,
			Size:  size,
			Delay: time.Duration(i) * interval,
		}
	}
	return batches
}
