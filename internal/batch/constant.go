package batch

import "context"

// ConstantProvider always requests the same batch size. Grounded on
// ConstantSizeTaskBatchProvider, which yields WAITING runs until it has
// emitted batch_size of them.
type ConstantProvider struct {
	selector  Selector
	BatchSize int
}

func NewConstantProvider(selector Selector, batchSize int) *ConstantProvider {
	return &ConstantProvider{selector: selector, BatchSize: batchSize}
}

func (p *ConstantProvider) NextBatch(ctx context.Context) ([]string, error) {
	return p.selector.SelectWaiting(ctx, p.BatchSize)
}
