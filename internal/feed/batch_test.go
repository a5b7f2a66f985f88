package feed

import "testing"

func rec(v string) Record {
	return Record{Value: v, Type: "IP"}
}

// TestBatches verifies chunk count, order, and the short final chunk.
func TestBatches(t *testing.T) {
	t.Parallel()

	records := []Record{rec("a"), rec("b"), rec("c"), rec("d"), rec("e")}

	batches := Batches(records, 2)
	if len(batches) != 3 {
		t.Fatalf("batches=%d, want 3", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Fatalf("batch sizes=%d,%d,%d, want 2,2,1", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	// Concatenating the chunks must reproduce the input verbatim.
	var flat []Record
	for _, b := range batches {
		flat = append(flat, b...)
	}
	if len(flat) != len(records) {
		t.Fatalf("flattened=%d records, want %d", len(flat), len(records))
	}
	for i := range records {
		if flat[i].Value != records[i].Value {
			t.Fatalf("record %d: %q, want %q", i, flat[i].Value, records[i].Value)
		}
	}
}

// TestBatches_EdgeCases verifies the degenerate inputs.
func TestBatches_EdgeCases(t *testing.T) {
	t.Parallel()

	if got := Batches(nil, 10); got != nil {
		t.Fatalf("Batches(nil)=%v, want nil", got)
	}
	if got := Batches([]Record{}, 10); got != nil {
		t.Fatalf("Batches(empty)=%v, want nil", got)
	}

	// size <= 0 degrades to one record per batch.
	records := []Record{rec("a"), rec("b")}
	if got := Batches(records, 0); len(got) != 2 {
		t.Fatalf("Batches(size=0)=%d batches, want 2", len(got))
	}
	if got := Batches(records, -5); len(got) != 2 {
		t.Fatalf("Batches(size=-5)=%d batches, want 2", len(got))
	}

	// size >= len yields a single batch.
	if got := Batches(records, 100); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("Batches(size=100)=%v, want one full batch", got)
	}
}
