package ledger

import (
	"sync"
	"testing"
)

func TestApplyBps(t *testing.T) {
	// 5% of $100.
	if got := ApplyBps(100*OneUSD, 500); got != 5*OneUSD {
		t.Fatalf("5%% of $100 = %d", got)
	}
	// Floor behavior: 0.5% of $0.000001.
	if got := ApplyBps(1, 50); got != 0 {
		t.Fatalf("sub-unit commission should floor to zero, got %d", got)
	}
}

func TestShareBps(t *testing.T) {
	if got := ShareBps(250, 1000); got != 2500 {
		t.Fatalf("quarter share = %d bps", got)
	}
	if got := ShareBps(1, 3); got != 3333 {
		t.Fatalf("third share floors to %d bps", got)
	}
}

func TestFormatUSD6(t *testing.T) {
	if got := FormatUSD6(1_500_000); got != "1.500000" {
		t.Fatalf("format: %s", got)
	}
	if got := FormatUSD6(-42); got != "-0.000042" {
		t.Fatalf("format negative: %s", got)
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("tenant-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 200 {
		t.Fatalf("lost increments: %d", counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done // must not deadlock while "a" is held
	unlockA()
}
