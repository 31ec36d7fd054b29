package ai

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
)

// TaskConfig configures a task-based image API: a create call returns a
// task id, and a status call is polled until the task succeeds or fails.
type TaskConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	RequestsPerMinute int

	// PollBase and PollCap shape the exponential polling backoff;
	// MaxWait bounds the whole wait. Zero values use defaults.
	PollBase time.Duration
	PollCap  time.Duration
	MaxWait  time.Duration
}

// TaskImageProvider generates images through a task-based API. It only
// implements ImageGenerator; install it with Registry.SetImageGenerator.
type TaskImageProvider struct {
	config TaskConfig
	api    *apiClient
}

var errTaskPending = errors.New("image task pending")

// NewTaskImageProvider creates a task-based image generator.
func NewTaskImageProvider(cfg TaskConfig) *TaskImageProvider {
	if cfg.PollBase == 0 {
		cfg.PollBase = 2 * time.Second
	}
	if cfg.PollCap == 0 {
		cfg.PollCap = 10 * time.Second
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 170 * time.Second
	}
	return &TaskImageProvider{
		config: cfg,
		api:    newAPIClient("image task", 30*time.Second, cfg.RequestsPerMinute),
	}
}

func (p *TaskImageProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.config.APIKey}
}

// GenerateImage creates the task, waits for it and downloads the result.
func (p *TaskImageProvider) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*Image, error) {
	taskID, err := p.createTask(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	resultURL, err := p.wait(ctx, taskID)
	if err != nil {
		return nil, err
	}

	data, contentType, err := p.api.get(ctx, resultURL, nil)
	if err != nil {
		return nil, fmt.Errorf("image task download: %w", err)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/png"
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

func (p *TaskImageProvider) createTask(ctx context.Context, prompt string, opts ImageOptions) (string, error) {
	input := map[string]any{
		"prompt":        prompt,
		"output_format": "png",
		"aspect_ratio":  "3:4",
	}
	if opts.Resolution != "" {
		input["resolution"] = opts.Resolution
	}
	if len(opts.ReferenceURLs) > 0 {
		input["image_input"] = opts.ReferenceURLs
	}
	body := map[string]any{"model": p.config.Model, "input": input}

	raw, err := p.api.post(ctx, p.config.BaseURL+"/api/v1/jobs/createTask", p.headers(), body)
	if err != nil {
		return "", err
	}
	if code := gjson.GetBytes(raw, "code"); code.Exists() && code.Int() != 200 {
		return "", fmt.Errorf("image task create: %s", gjson.GetBytes(raw, "msg").String())
	}
	id := gjson.GetBytes(raw, "data.taskId").String()
	if id == "" {
		return "", fmt.Errorf("image task create: no task id in response")
	}
	return id, nil
}

// wait polls the task with capped exponential backoff until it reaches a
// final state, MaxWait elapses or ctx is done.
func (p *TaskImageProvider) wait(ctx context.Context, taskID string) (string, error) {
	b := retry.NewExponential(p.config.PollBase)
	b = retry.WithCappedDuration(p.config.PollCap, b)
	b = retry.WithMaxDuration(p.config.MaxWait, b)

	statusURL := p.config.BaseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)

	var resultURL string
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		raw, _, err := p.api.get(ctx, statusURL, p.headers())
		if err != nil {
			// Transient upstream errors are retried like a pending task.
			return retry.RetryableError(err)
		}

		switch state := gjson.GetBytes(raw, "data.state").String(); state {
		case "success":
			resultJSON := gjson.GetBytes(raw, "data.resultJson").String()
			resultURL = gjson.Get(resultJSON, "resultUrls.0").String()
			if resultURL == "" {
				return fmt.Errorf("image task %s: no result url", taskID)
			}
			return nil
		case "fail":
			return fmt.Errorf("image task %s failed: %s", taskID, gjson.GetBytes(raw, "data.failMsg").String())
		default:
			return retry.RetryableError(errTaskPending)
		}
	})
	if err != nil {
		return "", fmt.Errorf("image task wait: %w", err)
	}
	return resultURL, nil
}
