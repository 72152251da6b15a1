package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestNewServer_ShutdownCancelsRequests(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(cancelled)
	})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	server := newServer(listener.Addr().String(), handler)
	go server.Serve(listener)

	go func() {
		resp, err := http.Get("http://" + listener.Addr().String() + "/video_feed")
		if err == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("Request never reached the handler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown should not wait for the deadline: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("Handler context was not cancelled by Shutdown")
	}
}
