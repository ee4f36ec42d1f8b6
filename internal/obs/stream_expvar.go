package obs

import (
	"expvar"
	"sync/atomic"
	"time"
)

var (
	activeStreamRelays int64
	totalStreamRelays  int64

	streamFirstWriteSamples int64
	streamFirstWriteSumMS   int64
	streamBytesRelayed      int64
)

func init() {
	expvar.Publish("chat_active_stream_relays", expvar.Func(func() any {
		return atomic.LoadInt64(&activeStreamRelays)
	}))
	expvar.Publish("chat_total_stream_relays", expvar.Func(func() any {
		return atomic.LoadInt64(&totalStreamRelays)
	}))
	expvar.Publish("chat_stream_first_write_ms_sum", expvar.Func(func() any {
		return atomic.LoadInt64(&streamFirstWriteSumMS)
	}))
	expvar.Publish("chat_stream_first_write_samples", expvar.Func(func() any {
		return atomic.LoadInt64(&streamFirstWriteSamples)
	}))
	expvar.Publish("chat_stream_bytes_relayed_total", expvar.Func(func() any {
		return atomic.LoadInt64(&streamBytesRelayed)
	}))
}

// TrackStreamRelay 增加活跃/累计流式转发计数，返回的函数应 defer 调用以回落活跃计数。
func TrackStreamRelay() func() {
	atomic.AddInt64(&activeStreamRelays, 1)
	atomic.AddInt64(&totalStreamRelays, 1)
	return func() {
		atomic.AddInt64(&activeStreamRelays, -1)
	}
}

func RecordStreamFirstWriteLatency(d time.Duration) {
	if d <= 0 {
		return
	}
	atomic.AddInt64(&streamFirstWriteSamples, 1)
	atomic.AddInt64(&streamFirstWriteSumMS, d.Milliseconds())
}

func RecordStreamBytesRelayed(n int64) {
	if n <= 0 {
		return
	}
	atomic.AddInt64(&streamBytesRelayed, n)
}
