package feed

// Batches groups records into fixed-size chunks for submission, preserving
// order. The final chunk may be shorter; no record is dropped or duplicated.
//
// Edge cases:
//   - size <= 0 is treated as 1.
//   - An empty input yields no batches (not one empty batch).
//
// Submission is fire-and-forget per chunk: a failed batch does not roll back
// chunks already submitted, so chunk boundaries must not carry semantics.
func Batches(records []Record, size int) [][]Record {
	if size <= 0 {
		size = 1
	}
	if len(records) == 0 {
		return nil
	}

	batches := make([][]Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}
