// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"
)

func TestCoalescerKeepsOnlyLatest(t *testing.T) {
	var got []int
	c := NewCoalescer(time.Hour, func(v int) { got = append(got, v) })

	if c.Flush() {
		t.Fatal("Flush() with nothing pending reported a delivery")
	}
	c.Offer(1)
	c.Offer(2)
	c.Offer(3)
	if !c.Pending() {
		t.Fatal("Pending() = false after Offer")
	}
	if !c.Flush() {
		t.Fatal("Flush() did not deliver")
	}
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("delivered %v, want [3]", got)
	}
	if c.Pending() {
		t.Error("Pending() = true after Flush")
	}
}

func TestCoalescerTicks(t *testing.T) {
	delivered := make(chan int, 4)
	c := NewCoalescer(5*time.Millisecond, func(v int) { delivered <- v })
	c.Start()
	c.Start()
	defer c.Stop()

	c.Offer(7)
	select {
	case v := <-delivered:
		if v != 7 {
			t.Errorf("delivered %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery within a second")
	}
}

func TestCoalescerStopDiscardsPending(t *testing.T) {
	c := NewCoalescer(time.Hour, func(int) { t.Error("unexpected delivery") })
	c.Stop()

	c.Start()
	c.Offer(1)
	c.Stop()
	c.Stop()
	if c.Pending() {
		t.Error("Pending() = true after Stop")
	}
	if c.Flush() {
		t.Error("Flush() after Stop delivered a discarded value")
	}
}

func TestCoalescerStartDropsStaleOffer(t *testing.T) {
	delivered := make(chan int, 4)
	c := NewCoalescer(5*time.Millisecond, func(v int) { delivered <- v })
	c.Start()
	c.Stop()

	c.Offer(1) // produced before the restart
	c.Start()
	defer c.Stop()
	if c.Pending() {
		t.Fatal("Pending() = true right after Start")
	}

	c.Offer(2)
	select {
	case v := <-delivered:
		if v != 2 {
			t.Errorf("delivered %d, want 2", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery within a second")
	}
}

func TestCoalescerDiscard(t *testing.T) {
	c := NewCoalescer(time.Hour, func(int) { t.Error("discarded value delivered") })
	c.Offer(1)
	c.Discard()
	if c.Pending() || c.Flush() {
		t.Error("value survived Discard")
	}
}
