package metrics

import "testing"

func BenchmarkCollector_Bind(b *testing.B) {
	c := New()
	for i := 0; i < b.N; i++ {
		c.BindSucceeded("https")
	}
}

// BenchmarkCollector_Connection covers what every forwarded connection
// records over its lifetime.
func BenchmarkCollector_Connection(b *testing.B) {
	c := New()
	for i := 0; i < b.N; i++ {
		c.ConnectionOpened("tcp")
		c.BytesReceived(512)
		c.BytesSent(4096)
		c.ConnectionClosed()
	}
}

func BenchmarkCollector_JSON(b *testing.B) {
	c := New()
	c.BindSucceeded("tcp")
	c.BindFailed("http", "rejected")
	c.ConnectionOpened("tcp")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.JSON()
	}
}

func BenchmarkCollector_Nil(b *testing.B) {
	var c *Collector
	for i := 0; i < b.N; i++ {
		c.BindSucceeded("tcp")
		c.ConnectionOpened("tcp")
		c.BytesSent(4096)
	}
}
