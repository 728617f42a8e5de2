package upload

import (
	"nearfs.io/upload/model"
)

// batches packs blocks greedily, in order, into runs of at most maxBlocks
// blocks and maxBytes data bytes.
func batches(blocks []model.Block, maxBlocks, maxBytes int) ([][]model.Block, error) {
	var (
		out  [][]model.Block
		cur  []model.Block
		size int
	)
	for _, b := range blocks {
		if b.Size() > maxBytes {
			return nil, model.NewError(model.KindPayloadTooLarge,
				"block of %d bytes exceeds the batch limit of %d", b.Size(), maxBytes).WithCIDs(b.CID)
		}
		if len(cur) > 0 && (len(cur) == maxBlocks || size+b.Size() > maxBytes) {
			out = append(out, cur)
			cur, size = nil, 0
		}
		cur = append(cur, b)
		size += b.Size()
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out, nil
}
