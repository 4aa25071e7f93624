package sim

import (
	"sync"
	"testing"
)

func TestReentrantMutexNested(t *testing.T) {
	var m reentrantMutex

	m.Lock()
	m.Lock()
	m.Lock()
	m.Unlock()
	m.Unlock()
	m.Unlock()

	// Fully released: another goroutine can take it.
	done := make(chan struct{})
	go func() {
		m.Lock()
		m.Unlock()
		close(done)
	}()
	<-done
}

func TestReentrantMutexExcludesOtherGoroutines(t *testing.T) {
	var m reentrantMutex
	var wg sync.WaitGroup

	counter := 0
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				m.Lock()
				m.Lock() // nested on purpose
				counter++
				m.Unlock()
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 8*500 {
		t.Errorf("counter = %d, want %d", counter, 8*500)
	}
}

func TestReentrantMutexUnlockByNonOwnerPanics(t *testing.T) {
	var m reentrantMutex
	m.Lock()
	defer m.Unlock()

	panicked := make(chan bool)
	go func() {
		defer func() {
			panicked <- recover() != nil
		}()
		m.Unlock()
	}()
	if !<-panicked {
		t.Errorf("unlock by non-owner did not panic")
	}
}

func TestGoroutineIDStable(t *testing.T) {
	if goroutineID() == 0 {
		t.Fatalf("goroutineID returned 0")
	}
	if goroutineID() != goroutineID() {
		t.Errorf("goroutineID changed within one goroutine")
	}

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	if id := <-other; id == goroutineID() {
		t.Errorf("distinct goroutines share id %d", id)
	}
}
