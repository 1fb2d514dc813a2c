package metrics

import "testing"

// BenchmarkCollector_ChatTraffic runs the reader and writer hot paths
// from many goroutines against one collector.
func BenchmarkCollector_ChatTraffic(b *testing.B) {
	c := New()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.LineReceived(48)
			c.MessageSent()
			c.BytesSent(16)
		}
	})
	if c.LinesReceived() == 0 {
		b.Fatal("no lines counted")
	}
}

func BenchmarkCollector_JSON(b *testing.B) {
	c := New()
	c.ConnectAttempt()
	c.SessionOpened()
	c.PingSent()
	c.RecordError("liveness timeout")

	for i := 0; i < b.N; i++ {
		_ = c.JSON()
	}
}

func BenchmarkCollector_Disabled(b *testing.B) {
	var c *Collector
	for i := 0; i < b.N; i++ {
		c.LineReceived(48)
		c.PingSent()
	}
}
