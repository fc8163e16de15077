package capture

import (
	"context"
	"testing"
	"time"
)

func TestRecorder_Lifecycle(t *testing.T) {
	start := time.Now()
	r := newRecorder(0, start)

	r.requestStarted("1", "https://example.com/", "Document", redirectHop{}, start)
	r.responseReceived("1", 200, "text/html", "Document", false, start.Add(10*time.Millisecond))
	r.loadingFinished("1", 12000, start.Add(20*time.Millisecond))

	r.requestStarted("2", "https://example.com/app.js", "Script", redirectHop{}, start.Add(30*time.Millisecond))
	r.loadingFailed("2", "net::ERR_CONNECTION_REFUSED", start.Add(40*time.Millisecond))

	r.requestStarted("3", "https://example.com/pending.png", "Image", redirectHop{}, start.Add(50*time.Millisecond))

	got, dropped := r.exchanges()
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0", dropped)
	}
	if len(got) != 3 {
		t.Fatalf("len(exchanges) = %d, want 3", len(got))
	}

	if got[0].Status != 200 || got[0].EncodedBytes != 12000 || got[0].Failed {
		t.Errorf("document exchange = %+v", got[0])
	}
	if got[0].DurationMs != 20 {
		t.Errorf("document duration = %d, want 20", got[0].DurationMs)
	}
	if !got[1].Failed || got[1].EncodedBytes != 0 || got[1].FailureReason == "" {
		t.Errorf("failed exchange should be kept with zero bytes: %+v", got[1])
	}
	if !got[2].Failed || got[2].FailureReason != "incomplete" {
		t.Errorf("unfinished exchange should be reported incomplete: %+v", got[2])
	}
}

func TestRecorder_Redirect(t *testing.T) {
	start := time.Now()
	r := newRecorder(0, start)

	r.requestStarted("1", "http://example.com/", "Document", redirectHop{}, start)
	r.requestStarted("1", "https://example.com/", "Document", redirectHop{Status: 301, EncodedBytes: 320}, start.Add(5*time.Millisecond))
	r.loadingFinished("1", 900, start.Add(15*time.Millisecond))

	got, _ := r.exchanges()
	if len(got) != 2 {
		t.Fatalf("len(exchanges) = %d, want 2", len(got))
	}
	if got[0].URL != "http://example.com/" || got[0].Status != 301 || got[0].Failed || got[0].EncodedBytes != 320 {
		t.Errorf("redirect hop = %+v", got[0])
	}
	if got[1].URL != "https://example.com/" || got[1].EncodedBytes != 900 {
		t.Errorf("final hop = %+v", got[1])
	}
}

func TestRecorder_ErrorStatusIsFailed(t *testing.T) {
	start := time.Now()
	r := newRecorder(0, start)

	r.requestStarted("1", "https://example.com/missing.png", "Image", redirectHop{}, start)
	r.responseReceived("1", 404, "text/html", "Image", false, start.Add(5*time.Millisecond))
	r.loadingFinished("1", 1500, start.Add(10*time.Millisecond))

	got, _ := r.exchanges()
	if len(got) != 1 {
		t.Fatalf("len(exchanges) = %d, want 1", len(got))
	}
	if !got[0].Failed || got[0].EncodedBytes != 0 || got[0].Status != 404 || got[0].FailureReason != "HTTP 404" {
		t.Errorf("404 exchange = %+v, want failed with zero bytes and status kept", got[0])
	}
}

func TestRecorder_Limit(t *testing.T) {
	start := time.Now()
	r := newRecorder(2, start)
	for _, id := range []string{"a", "b", "c", "d"} {
		r.requestStarted(id, "https://example.com/"+id, "Other", redirectHop{}, start)
	}
	got, dropped := r.exchanges()
	if len(got) != 2 || dropped != 2 {
		t.Errorf("got %d exchanges and %d dropped, want 2 and 2", len(got), dropped)
	}
}

func TestRecorder_WaitIdle(t *testing.T) {
	r := newRecorder(0, time.Now())
	r.requestStarted("1", "https://example.com/", "Document", redirectHop{}, time.Now())

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.loadingFinished("1", 10, time.Now())
	}()

	_, ok := r.waitIdle(context.Background(), 20*time.Millisecond, 2*time.Second)
	if !ok {
		t.Fatal("expected network to become idle")
	}
}

func TestRecorder_WaitIdleGivesUp(t *testing.T) {
	r := newRecorder(0, time.Now())
	r.requestStarted("1", "https://example.com/stream", "Fetch", redirectHop{}, time.Now())

	if _, ok := r.waitIdle(context.Background(), 10*time.Millisecond, 50*time.Millisecond); ok {
		t.Error("expected idle wait to give up while a request is in flight")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := r.waitIdle(ctx, 10*time.Millisecond, time.Second); ok {
		t.Error("expected idle wait to stop on cancelled context")
	}
}
