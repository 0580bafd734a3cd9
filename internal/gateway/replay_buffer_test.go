package gateway

import (
	"testing"
)

func TestReplayBufferRange(t *testing.T) {
	rb := NewReplayBuffer(10)
	for seq := int64(1); seq <= 5; seq++ {
		rb.Push(seq, []byte{byte(seq)})
	}
	if rb.Len() != 5 {
		t.Fatalf("len = %d", rb.Len())
	}
	out := rb.Range(2, 4)
	if len(out) != 3 {
		t.Fatalf("range len = %d", len(out))
	}
	for i, env := range out {
		if env[0] != byte(i+2) {
			t.Errorf("out[%d] = %v", i, env)
		}
	}
}

func TestReplayBufferOverwritesOldest(t *testing.T) {
	rb := NewReplayBuffer(3)
	for seq := int64(1); seq <= 5; seq++ {
		rb.Push(seq, []byte{byte(seq)})
	}
	if rb.Len() != 3 {
		t.Fatalf("len = %d", rb.Len())
	}
	// Seqs 1 and 2 have been evicted.
	if out := rb.Range(1, 2); len(out) != 0 {
		t.Errorf("evicted entries still served: %d", len(out))
	}
	out := rb.Range(1, 5)
	if len(out) != 3 || out[0][0] != 3 || out[2][0] != 5 {
		t.Errorf("range = %v", out)
	}
}

func TestReplayBufferCopiesData(t *testing.T) {
	rb := NewReplayBuffer(4)
	buf := []byte("abc")
	rb.Push(1, buf)
	buf[0] = 'z'
	out := rb.Range(1, 1)
	if string(out[0]) != "abc" {
		t.Errorf("buffer aliased caller slice: %q", out[0])
	}
}

func TestLatencyPercentiles(t *testing.T) {
	lt := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}
	p50, p95, p99 := lt.Percentiles()
	if p50 < 49 || p50 > 52 {
		t.Errorf("p50 = %f", p50)
	}
	if p95 < 94 || p95 > 97 {
		t.Errorf("p95 = %f", p95)
	}
	if p99 < 98 || p99 > 100 {
		t.Errorf("p99 = %f", p99)
	}
}

func TestLatencyEmpty(t *testing.T) {
	lt := NewLatencyTracker(10)
	if p50, p95, p99 := lt.Percentiles(); p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker returned %f %f %f", p50, p95, p99)
	}
}
