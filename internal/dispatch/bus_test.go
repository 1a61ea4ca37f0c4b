package dispatch

import "testing"

func TestBusFanOut(t *testing.T) {
	b := NewBus(nil)

	var got1, got2 []string
	b.Subscribe(func(ev Event) { got1 = append(got1, ev.Name()) })
	b.Subscribe(func(ev Event) { got2 = append(got2, ev.Name()) })

	b.Publish(DataUpdated{Symbol: "005930"})
	b.Publish(DepositUpdated{})

	for i, got := range [][]string{got1, got2} {
		if len(got) != 2 || got[0] != "data_updated" || got[1] != "deposit_updated" {
			t.Errorf("subscriber %d received %v", i+1, got)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(nil)

	var count int
	unsub := b.Subscribe(func(Event) { count++ })

	b.Publish(DataUpdated{})
	unsub()
	b.Publish(DataUpdated{})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d, want 0", b.Len())
	}

	// Double unsubscribe is a no-op.
	unsub()
}

func TestBusIsolatesPanickingSubscriber(t *testing.T) {
	b := NewBus(nil)

	var delivered int
	b.Subscribe(func(Event) { panic("boom") })
	b.Subscribe(func(Event) { delivered++ })
	b.Subscribe(func(Event) { delivered++ })

	b.Publish(DataUpdated{Symbol: "005930"})

	if delivered != 2 {
		t.Errorf("delivered = %d, want 2 despite panicking subscriber", delivered)
	}
}
