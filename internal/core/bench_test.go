package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	ctx := context.Background()
	hub := NewHub(nil, Options{RateLimit: b.N + 1, RateWindow: time.Hour})

	sender := connect(hub, "sender")
	if _, err := hub.Identify(ctx, "sender", "sender"); err != nil {
		b.Fatal(err)
	}

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		id := fmt.Sprintf("c%d", i)
		c := connect(hub, id)
		if _, err := hub.Identify(ctx, id, "client-"+id); err != nil {
			b.Fatal(err)
		}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	stop := make(chan struct{})
	defer close(stop)
	for _, c := range append(clients[1:], sender) {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events:
				case <-stop:
					return
				}
			}
		}(c)
	}
	target := clients[0]
	for len(target.Events) > 0 {
		<-target.Events
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.SendMessage(ctx, "sender", "payload"); err != nil {
			b.Fatal(err)
		}
		<-target.Events
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
