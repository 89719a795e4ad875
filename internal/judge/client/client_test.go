package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"codeprep/internal/judge/client"
	"codeprep/internal/judge/model"
	"codeprep/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*client.Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	c, err := client.NewClient(client.Config{
		BaseURL:      server.URL,
		APIKey:       "secret",
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, &hits
}

func batchRequest(n int) model.BatchRequest {
	req := model.BatchRequest{SourceCode: "print(input())", LanguageID: 71}
	for i := 0; i < n; i++ {
		req.Stdin = append(req.Stdin, "4")
		req.ExpectedOutputs = append(req.ExpectedOutputs, "4")
	}
	return req
}

func TestSubmitBatchPreservesTokenOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Auth-Token") != "secret" {
			t.Errorf("missing api key header")
		}
		var body model.BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.LanguageID != 71 || len(body.Stdin) != 3 {
			t.Errorf("unexpected body: %+v", body)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"tokens":["t0",{"token":"t1"},"t2"],"submissions":[{"id":987}]}}`))
	})

	res, err := c.SubmitBatch(context.Background(), batchRequest(3))
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	want := []model.Token{"t0", "t1", "t2"}
	for i := range want {
		if res.Tokens[i] != want[i] {
			t.Fatalf("token[%d] = %q, want %q", i, res.Tokens[i], want[i])
		}
	}
	if res.JudgeRef != "987" {
		t.Fatalf("JudgeRef = %q", res.JudgeRef)
	}
}

func TestSubmitBatchQuotaPassthrough(t *testing.T) {
	const msg = "Daily quota of 50 submissions exceeded"
	for _, status := range []int{http.StatusOK, http.StatusTooManyRequests} {
		c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"success":false,"message":"` + msg + `"}`))
		})

		_, err := c.SubmitBatch(context.Background(), batchRequest(1))
		if !errors.Is(err, errors.QuotaExceeded) {
			t.Fatalf("status %d: expected QuotaExceeded, got %v", status, err)
		}
		if err.Error() != msg {
			t.Fatalf("status %d: message = %q, want %q", status, err.Error(), msg)
		}
		if hits.Load() != 1 {
			t.Fatalf("status %d: submit sent %d times, want 1", status, hits.Load())
		}
	}
}

func TestSubmitBatchRejected(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		message string
	}{
		{name: "message", body: `{"success":false,"message":"Unsupported language"}`, message: "Unsupported language"},
		{name: "generic", body: `{"success":false}`, message: "Failed to submit code"},
		{name: "short tokens", body: `{"success":true,"data":{"tokens":["a"]}}`, message: "Failed to submit code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.SubmitBatch(context.Background(), batchRequest(2))
			if !errors.Is(err, errors.SubmissionRejected) {
				t.Fatalf("expected SubmissionRejected, got %v", err)
			}
			if err.Error() != tc.message {
				t.Fatalf("message = %q, want %q", err.Error(), tc.message)
			}
		})
	}
}

func TestSubmitBatchServerErrorNotRetried(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.SubmitBatch(context.Background(), batchRequest(1))
	if !errors.Is(err, errors.JudgeUnavailable) {
		t.Fatalf("expected JudgeUnavailable, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("submit sent %d times, want 1", hits.Load())
	}
}

func TestSubmitBatchPreconditionsSkipNetwork(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})

	req := batchRequest(1)
	req.LanguageID = 0
	if _, err := c.SubmitBatch(context.Background(), req); !errors.Is(err, errors.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
	if _, err := c.SubmitBatch(context.Background(), batchRequest(0)); !errors.Is(err, errors.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for empty stdin, got %v", err)
	}
	req = batchRequest(2)
	req.ExpectedOutputs = req.ExpectedOutputs[:1]
	if _, err := c.SubmitBatch(context.Background(), req); !errors.Is(err, errors.ValidationFailed) {
		t.Fatalf("expected ValidationFailed for length mismatch, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("unexpected network calls: %d", hits.Load())
	}
}

func TestGetResult(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submissions/tok-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":{"id":3,"description":"Accepted"},"stdout":"4\n","stderr":null,"time":"0.01","memory":1024}`))
	})

	snap, err := c.GetResult(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if snap.Status.ID != model.StatusAccepted || snap.StdoutText() != "4\n" || snap.MemoryText() != "1024" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetResultRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":{"id":2}}`))
	})

	snap, err := c.GetResult(context.Background(), "tok-2")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if snap.Status.ID != model.StatusProcessing {
		t.Fatalf("status = %v", snap.Status.ID)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestGetResultCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"id":3}}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetResult(ctx, "tok"); !errors.Is(err, errors.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := client.NewClient(client.Config{}); err == nil {
		t.Fatalf("expected error for empty baseURL")
	}
}

func TestCallBoundIncludesRetries(t *testing.T) {
	c, err := client.NewClient(client.Config{
		BaseURL:        "http://judge.local",
		RequestTimeout: 10 * time.Second,
		PollRetryMax:   2,
		RetryWaitMax:   time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// three requests and two backoff waits
	if got, want := c.CallBound(), 32*time.Second; got != want {
		t.Fatalf("CallBound = %v, want %v", got, want)
	}
}
