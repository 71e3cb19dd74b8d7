package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const idempotencyHeader = "Idempotency-Key"

type lessonView struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Spaces  int    `json:"spaces"`
}

type orderRequest struct {
	Name      string   `json:"name"`
	Phone     string   `json:"phone"`
	LessonIDs []string `json:"lessonIDs"`
	Spaces    []int    `json:"spaces"`
}

// apiClient - минимальный HTTP-клиент к API бронирования.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string, httpClient *http.Client) *apiClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &apiClient{baseURL: baseURL, http: httpClient}
}

func (c *apiClient) lessons(ctx context.Context) ([]lessonView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/lessons", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /lessons: unexpected status %d", resp.StatusCode)
	}
	var lessons []lessonView
	if err := json.NewDecoder(resp.Body).Decode(&lessons); err != nil {
		return nil, fmt.Errorf("decode lessons: %w", err)
	}
	return lessons, nil
}

func (c *apiClient) lesson(ctx context.Context, id string) (lessonView, error) {
	lessons, err := c.lessons(ctx)
	if err != nil {
		return lessonView{}, err
	}
	for _, l := range lessons {
		if l.ID == id {
			return l, nil
		}
	}
	return lessonView{}, fmt.Errorf("lesson %s not found", id)
}

// pickLesson возвращает урок по id или урок с наибольшим числом мест.
func (c *apiClient) pickLesson(ctx context.Context, id string) (lessonView, error) {
	if id != "" {
		return c.lesson(ctx, id)
	}
	lessons, err := c.lessons(ctx)
	if err != nil {
		return lessonView{}, err
	}
	if len(lessons) == 0 {
		return lessonView{}, errors.New("catalog is empty, run seed first")
	}
	best := lessons[0]
	for _, l := range lessons[1:] {
		if l.Spaces > best.Spaces {
			best = l
		}
	}
	return best, nil
}

func (c *apiClient) placeOrder(ctx context.Context, order orderRequest, key string) (int, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, key)
	return c.do(req)
}

func (c *apiClient) search(ctx context.Context, q string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?q="+url.QueryEscape(q), nil)
	if err != nil {
		return 0, err
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
