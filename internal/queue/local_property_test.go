package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"yqhp/worker-fleet/internal/signal"
)

// TestLocalCapacityProperty 属性: 任意 put/get/drain 序列下长度不超过容量
func TestLocalCapacityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		ch := NewLocal[int]("prop", capacity, nil)
		model := 0

		ops := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 200).Draw(t, "ops")
		for i, op := range ops {
			switch {
			case op < 6:
				err := ch.PutNowait(i)
				if model < capacity {
					if err != nil {
						t.Fatalf("put rejected below capacity: %v", err)
					}
					model++
				} else if err != ErrFull {
					t.Fatalf("expected ErrFull at capacity, got %v", err)
				}
			case op < 9:
				_, err := ch.GetNowait()
				if model > 0 {
					if err != nil {
						t.Fatalf("get failed with %d items: %v", model, err)
					}
					model--
				} else if err != ErrEmpty {
					t.Fatalf("expected ErrEmpty, got %v", err)
				}
			default:
				items, _ := ch.Drain()
				if len(items) != model {
					t.Fatalf("drained %d items, want %d", len(items), model)
				}
				model = 0
			}

			if ch.Len() > capacity {
				t.Fatalf("len %d exceeds capacity %d", ch.Len(), capacity)
			}
			if ch.Len() != model {
				t.Fatalf("len %d, model %d", ch.Len(), model)
			}
		}
	})
}

// TestLocalConcurrentCapacityProperty 属性: 并发生产消费时长度不超过容量
func TestLocalConcurrentCapacityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 4).Draw(t, "capacity")
		producers := rapid.IntRange(1, 4).Draw(t, "producers")
		perProducer := rapid.IntRange(1, 50).Draw(t, "perProducer")

		exit := signal.NewLocal()
		ch := NewLocal[int]("concurrent", capacity, exit, WithPollInterval(time.Millisecond))

		var violated atomic.Bool
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					if err := ch.Put(i, true, time.Second); err != nil {
						return
					}
					if ch.Len() > capacity {
						violated.Store(true)
					}
				}
			}()
		}

		received := 0
		for received < producers*perProducer {
			if _, err := ch.Get(true, time.Second); err != nil {
				break
			}
			received++
			if ch.Len() > capacity {
				violated.Store(true)
			}
		}
		exit.Request()
		wg.Wait()

		if violated.Load() {
			t.Fatalf("observed length above capacity %d", capacity)
		}
		if received != producers*perProducer {
			t.Fatalf("received %d of %d items", received, producers*perProducer)
		}
	})
}

// TestLocalFIFOProperty 属性: 单生产者单消费者按提交顺序取出
func TestLocalFIFOProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(0, 5).Draw(t, "capacity")
		items := rapid.SliceOfN(rapid.Int(), 1, 100).Draw(t, "items")

		exit := signal.NewLocal()
		ch := NewLocal[int]("fifo", capacity, exit, WithPollInterval(time.Millisecond))

		go func() {
			for _, item := range items {
				if err := ch.Put(item, true, 0); err != nil {
					return
				}
			}
		}()
		defer exit.Request()

		for i, want := range items {
			got, err := ch.Get(true, time.Second)
			if err != nil {
				t.Fatalf("get %d: %v", i, err)
			}
			if got != want {
				t.Fatalf("item %d: got %d, want %d", i, got, want)
			}
		}
	})
}
