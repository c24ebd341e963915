package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jihun-01/scratcha-backend/internal/domain/model"
	"github.com/jihun-01/scratcha-backend/internal/infrastructure/storage/archive"
	"go.uber.org/zap"
)

// replayAnswer 리플레이는 정답 여부가 아니라 행동 판정을 보기 위한 것입니다.
const replayAnswer = "replay_test"

var errPollExhausted = errors.New("polling attempts exhausted")

// ObjectGetter is the subset of *s3.Client the replayer needs
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type replayer struct {
	objects  ObjectGetter
	bucket   string
	client   *http.Client
	baseURL  string
	apiKey   string
	interval time.Duration
	retries  int
	logger   *zap.Logger
}

// Run downloads key, issues a fresh challenge, submits the archived
// telemetry under the new token and waits for the verdict.
func (r *replayer) Run(ctx context.Context, key string) (json.RawMessage, error) {
	telemetry, err := r.download(ctx, key)
	if err != nil {
		return nil, err
	}

	token, err := r.issue(ctx)
	if err != nil {
		return nil, err
	}
	r.logger.Info("새로운 Client-Token 발급", zap.String("client_token", token))

	taskID, err := r.submit(ctx, token, telemetry)
	if err != nil {
		return nil, err
	}
	r.logger.Info("검증 작업 접수", zap.String("task_id", taskID))

	return r.poll(ctx, taskID)
}

func (r *replayer) download(ctx context.Context, key string) (*model.TelemetryInput, error) {
	out, err := r.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", r.bucket, key, err)
	}
	defer out.Body.Close()

	zr, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	telemetry, err := archive.DecodeJSONL(zr)
	if err != nil {
		return nil, err
	}
	if len(telemetry.Meta) == 0 {
		return nil, fmt.Errorf("%s has no meta line", key)
	}
	return telemetry, nil
}

func (r *replayer) issue(ctx context.Context) (string, error) {
	var body struct {
		ClientToken string `json:"clientToken"`
	}
	if _, err := r.call(ctx, http.MethodPost, "/api/captcha/problem", nil, nil, &body, http.StatusOK); err != nil {
		return "", fmt.Errorf("problem request failed: %w", err)
	}
	if body.ClientToken == "" {
		return "", errors.New("problem response has no clientToken")
	}
	return body.ClientToken, nil
}

func (r *replayer) submit(ctx context.Context, token string, t *model.TelemetryInput) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"answer": replayAnswer,
		"meta":   t.Meta,
		"events": t.Events,
	})
	if err != nil {
		return "", err
	}

	var body struct {
		TaskID string `json:"taskId"`
	}
	headers := map[string]string{"X-Client-Token": token}
	if _, err := r.call(ctx, http.MethodPost, "/api/captcha/verify", headers, payload, &body, http.StatusAccepted, http.StatusOK); err != nil {
		return "", fmt.Errorf("verify request failed: %w", err)
	}
	if body.TaskID == "" {
		return "", errors.New("verify response has no taskId")
	}
	return body.TaskID, nil
}

func (r *replayer) poll(ctx context.Context, taskID string) (json.RawMessage, error) {
	path := "/api/captcha/verify/result/" + taskID
	for i := 0; i < r.retries; i++ {
		var body json.RawMessage
		status, err := r.call(ctx, http.MethodGet, path, nil, nil, &body, http.StatusOK, http.StatusAccepted)
		if err != nil {
			return nil, fmt.Errorf("result request failed: %w", err)
		}
		if status == http.StatusOK {
			return body, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.interval):
		}
	}
	return nil, errPollExhausted
}

// call sends one request and decodes the JSON response into out. A status
// outside accept is an error carrying the response body.
func (r *replayer) call(ctx context.Context, method, path string, headers map[string]string, body []byte, out interface{}, accept ...int) (int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.baseURL, "/")+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Api-Key", r.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			if out != nil && len(raw) > 0 {
				if err := json.Unmarshal(raw, out); err != nil {
					return resp.StatusCode, fmt.Errorf("invalid response body: %w", err)
				}
			}
			return resp.StatusCode, nil
		}
	}
	return resp.StatusCode, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
