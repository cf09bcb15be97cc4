package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type httpClient struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPClient builds a Client against the tracker's REST API.
func NewHTTPClient(cfg Config) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		base:   cfg.BaseURL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}
}

type taskPayload struct {
	Name      string `json:"name"`
	Notes     string `json:"notes"`
	Assignee  string `json:"assignee,omitempty"`
	Completed bool   `json:"completed"`
	ProjectID string `json:"project_id,omitempty"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *httpClient) CreateTask(ctx context.Context, projectID string, fields TaskFields) (string, error) {
	var out idResponse
	err := c.do(ctx, http.MethodPost, "/tasks", taskPayload{
		Name:      fields.Name,
		Notes:     fields.Notes,
		Assignee:  fields.Assignee,
		Completed: fields.Completed,
		ProjectID: projectID,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}
	return out.ID, nil
}

func (c *httpClient) UpdateTask(ctx context.Context, taskID string, fields TaskFields) error {
	err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(taskID), taskPayload{
		Name:      fields.Name,
		Notes:     fields.Notes,
		Assignee:  fields.Assignee,
		Completed: fields.Completed,
	}, nil)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", taskID, err)
	}
	return nil
}

func (c *httpClient) AddComment(ctx context.Context, taskID, body string) (string, error) {
	var out idResponse
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/comments",
		map[string]string{"body": body}, &out)
	if err != nil {
		return "", fmt.Errorf("adding comment to task %s: %w", taskID, err)
	}
	return out.ID, nil
}

func (c *httpClient) UpdateComment(ctx context.Context, commentID, body string) error {
	err := c.do(ctx, http.MethodPut, "/comments/"+url.PathEscape(commentID),
		map[string]string{"body": body}, nil)
	if err != nil {
		return fmt.Errorf("updating comment %s: %w", commentID, err)
	}
	return nil
}

func (c *httpClient) DeleteComment(ctx context.Context, commentID string) error {
	err := c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, nil)
	if err != nil {
		return fmt.Errorf("deleting comment %s: %w", commentID, err)
	}
	return nil
}

func (c *httpClient) AddFollowers(ctx context.Context, taskID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/followers",
		map[string][]string{"followers": userIDs}, nil)
	if err != nil {
		return fmt.Errorf("adding followers to task %s: %w", taskID, err)
	}
	return nil
}

func (c *httpClient) UploadAttachment(ctx context.Context, taskID, assetURL string) (string, error) {
	var out idResponse
	err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID)+"/attachments",
		map[string]string{"url": assetURL}, &out)
	if err != nil {
		return "", fmt.Errorf("uploading attachment to task %s: %w", taskID, err)
	}
	return out.ID, nil
}

func (c *httpClient) DeleteAttachment(ctx context.Context, attachmentID string) error {
	err := c.do(ctx, http.MethodDelete, "/attachments/"+url.PathEscape(attachmentID), nil, nil)
	if err != nil {
		return fmt.Errorf("deleting attachment %s: %w", attachmentID, err)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s %s returned %d", ErrUnavailable, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, raw)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
