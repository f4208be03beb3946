package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
)

// AskClient talks to a plain question/answer HTTP endpoint:
// POST {"question", "max_tokens", "temperature", "top_p"} and read the
// answer from "response" or "answer".
type AskClient struct {
	url    string
	client *http.Client
	log    *logrus.Entry
}

// NewAskClient creates a client for url. Timeouts come from the caller's
// context; client may be nil.
func NewAskClient(url string, client *http.Client, log *logrus.Entry) *AskClient {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AskClient{url: url, client: client, log: log.WithField("component", "ask")}
}

type askRequest struct {
	Question    string  `json:"question"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

func (c *AskClient) Ask(ctx context.Context, q Question) (string, error) {
	reqID := uuid.New().String()
	start := time.Now()
	log := c.log.WithField("req_id", reqID)

	bs, err := json.Marshal(askRequest{
		Question:    q.Prompt,
		MaxTokens:   q.MaxTokens,
		Temperature: q.Temperature,
		TopP:        q.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.WithFields(logrus.Fields{"url": c.url, "content_length": len(bs)}).Info("ask request")

	resp, err := c.client.Do(req)
	if err != nil {
		log.WithError(err).WithField("elapsed_ms", time.Since(start).Milliseconds()).Error("ask send failed")
		return "", transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(err)
	}

	log.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"bytes":      len(raw),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("ask response")

	if resp.StatusCode != http.StatusOK {
		return "", errs.Upstream(errs.CauseStatus, resp.StatusCode, string(raw),
			fmt.Errorf("reasoning service returned %d", resp.StatusCode))
	}
	return answerOf(raw), nil
}

// answerOf picks the answer out of the reply body. Bodies that are not an
// object with a known field are returned whole.
func answerOf(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return string(raw)
	}
	for _, key := range []string{"response", "answer"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return string(raw)
}
