package slabq

import "testing"

func BenchmarkOffer(b *testing.B) {
	q, err := New[int](b.TempDir(), WithName[int]("bench"))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := i
		if _, err := q.Offer(&v); err != nil {
			b.Fatalf("Offer failed: %v", err)
		}
	}
}

func BenchmarkOfferPoll(b *testing.B) {
	q, err := New[int](b.TempDir(), WithName[int]("bench"))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer q.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := i
		if _, err := q.Offer(&v); err != nil {
			b.Fatalf("Offer failed: %v", err)
		}
		if _, _, err := q.Poll(); err != nil {
			b.Fatalf("Poll failed: %v", err)
		}
	}
}

func BenchmarkIterator(b *testing.B) {
	q, err := New[int](b.TempDir(), WithName[int]("bench"))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	defer q.Close()
	for i := 0; i < 1000; i++ {
		v := i
		if _, err := q.Offer(&v); err != nil {
			b.Fatalf("Offer failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		it, err := q.Iterator()
		if err != nil {
			b.Fatalf("Iterator failed: %v", err)
		}
		for {
			_, ok, err := it.Next()
			if err != nil {
				b.Fatalf("Next failed: %v", err)
			}
			if !ok {
				break
			}
		}
		it.Close()
	}
}
