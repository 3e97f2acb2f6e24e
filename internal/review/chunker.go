package review

import "github.com/dshills/redline/internal/docx"

// DefaultBudget is the per-batch size budget when none is configured.
const DefaultBudget = 6000

// unitSize is the monotonic proxy for model input cost.
func unitSize(u docx.Unit) int {
	return len(u.Text)
}

// Chunk packs units in order into batches whose estimated size stays within
// budget. A unit larger than the budget gets a batch of its own; units are
// never split or dropped. Identical inputs always produce identical batches.
func Chunk(units []docx.Unit, budget int) []Batch {
	if len(units) == 0 {
		return nil
	}
	if budget <= 0 {
		budget = DefaultBudget
	}

	var batches []Batch
	var cur Batch
	flush := func() {
		if len(cur.Units) == 0 {
			return
		}
		cur.Index = len(batches)
		batches = append(batches, cur)
		cur = Batch{}
	}

	for _, u := range units {
		size := unitSize(u)
		if len(cur.Units) > 0 && cur.EstimatedSize+size > budget {
			flush()
		}
		cur.Units = append(cur.Units, u)
		cur.EstimatedSize += size
		if cur.EstimatedSize > budget {
			// Single oversized unit occupies its own batch.
			flush()
		}
	}
	flush()
	return batches
}
