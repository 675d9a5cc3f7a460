package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"app-deployment-service/internal/deploy-server/events"
)

const requestTimeout = 30 * time.Second

// Notifier delivers the evaluation payload to the caller-supplied URL
// with bounded exponential backoff. The delay schedule fixes the
// maximum attempt count; exhausting it is non-fatal to the run.
type Notifier struct {
	client *client.Client
	delays []time.Duration
}

func New(delays []time.Duration) (*Notifier, error) {
	c, err := client.NewClient(
		client.WithTLSConfig(&tls.Config{}),
		client.WithDialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier HTTP client: %w", err)
	}
	return &Notifier{client: c, delays: delays}, nil
}

// Notify posts the payload until a 2xx response or the schedule is
// exhausted. Returns true when acknowledged.
func (n *Notifier) Notify(ctx context.Context, evaluationURL string, payload events.EvaluationPayload) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal evaluation payload for task %s: %v", payload.Task, err)
		return false
	}

	for attempt, delay := range n.delays {
		log.Printf("Sending evaluation notification (attempt %d/%d)", attempt+1, len(n.delays))

		status, respBody, err := n.post(ctx, evaluationURL, body)
		if err != nil {
			log.Printf("Evaluation notification failed: %v", err)
		} else if status >= 200 && status < 300 {
			log.Printf("Evaluation notification successful: %s", respBody)
			return true
		} else {
			log.Printf("Evaluation returned %d: %s", status, respBody)
		}

		if attempt < len(n.delays)-1 {
			log.Printf("Retrying in %s...", delay)
			time.Sleep(delay)
		}
	}

	log.Println("All evaluation notification attempts failed")
	return false
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(url)
	req.SetBody(body)
	req.Header.SetContentTypeBytes([]byte("application/json"))

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := n.client.Do(callCtx, req, resp); err != nil {
		return 0, nil, err
	}
	respBody := make([]byte, len(resp.Body()))
	copy(respBody, resp.Body())
	return resp.StatusCode(), respBody, nil
}
