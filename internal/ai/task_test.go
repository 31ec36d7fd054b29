package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// taskServer simulates a task-based image API that reports "generating"
// for the first pending polls, then finalState.
func taskServer(t *testing.T, pending int32, finalState string) (*httptest.Server, *atomic.Int32, *[]byte) {
	t.Helper()
	var polls atomic.Int32
	var created []byte

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/jobs/createTask":
			if r.Header.Get("Authorization") != "Bearer tk" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			created, _ = io.ReadAll(r.Body)
			w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"task-42"}}`))
		case "/api/v1/jobs/recordInfo":
			if r.URL.Query().Get("taskId") != "task-42" {
				t.Errorf("unexpected task id %q", r.URL.Query().Get("taskId"))
			}
			n := polls.Add(1)
			if n <= pending {
				w.Write([]byte(`{"code":200,"data":{"state":"generating"}}`))
				return
			}
			if finalState == "fail" {
				w.Write([]byte(`{"code":200,"data":{"state":"fail","failMsg":"content policy"}}`))
				return
			}
			result, _ := json.Marshal(map[string]any{"resultUrls": []string{srv.URL + "/files/out.png"}})
			resp, _ := json.Marshal(map[string]any{"code": 200, "data": map[string]any{"state": "success", "resultJson": string(result)}})
			w.Write(resp)
		case "/files/out.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("PNGDATA"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &polls, &created
}

func fastTask(baseURL string) *TaskImageProvider {
	return NewTaskImageProvider(TaskConfig{
		BaseURL:  baseURL,
		APIKey:   "tk",
		Model:    "nano-banana-pro",
		PollBase: time.Millisecond,
		PollCap:  5 * time.Millisecond,
		MaxWait:  2 * time.Second,
	})
}

func TestTaskImageProvider_Success(t *testing.T) {
	srv, polls, created := taskServer(t, 2, "success")
	p := fastTask(srv.URL)

	img, err := p.GenerateImage(context.Background(), "affiche église", ImageOptions{
		Resolution:    "4K",
		ReferenceURLs: []string{"https://cdn/ref.png"},
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(img.Data) != "PNGDATA" || img.ContentType != "image/png" {
		t.Errorf("unexpected image: %q %s", img.Data, img.ContentType)
	}
	if polls.Load() != 3 {
		t.Errorf("polls: got %d, want 3", polls.Load())
	}

	body := string(*created)
	for _, want := range []string{`"model":"nano-banana-pro"`, `"resolution":"4K"`, `"image_input":["https://cdn/ref.png"]`, `"prompt":"affiche église"`} {
		if !strings.Contains(body, want) {
			t.Errorf("create body missing %s: %s", want, body)
		}
	}
}

func TestTaskImageProvider_Failed(t *testing.T) {
	srv, polls, _ := taskServer(t, 1, "fail")
	p := fastTask(srv.URL)

	_, err := p.GenerateImage(context.Background(), "x", ImageOptions{})
	if err == nil || !strings.Contains(err.Error(), "content policy") {
		t.Fatalf("expected failure message, got %v", err)
	}
	if polls.Load() != 2 {
		t.Errorf("a failed task must stop polling, got %d polls", polls.Load())
	}
}

func TestTaskImageProvider_ContextDeadline(t *testing.T) {
	srv, _, _ := taskServer(t, 1<<30, "success")
	p := fastTask(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := p.GenerateImage(ctx, "x", ImageOptions{}); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("polling should stop when the context ends")
	}
}

func TestTaskImageProvider_CreateRejected(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, []byte(`{"code":402,"msg":"insufficient balance"}`))
	p := fastTask(srv.URL)

	_, err := p.GenerateImage(context.Background(), "x", ImageOptions{})
	if err == nil || !strings.Contains(err.Error(), "insufficient balance") {
		t.Errorf("expected create error, got %v", err)
	}
}
