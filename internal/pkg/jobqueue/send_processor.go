package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// Dispatcher performs the actual provider call for an outbound message. The
// implementation re-resolves tenant credentials (cache or registry) at
// dispatch time so a job that waited through a multi-hour backlog still sends
// with a current token.
type Dispatcher interface {
	DispatchMessage(ctx context.Context, tenantID, to string, payload json.RawMessage) error
}

// processSendMessageJob delivers one outbound message. Any returned error
// marks the attempt failed; queue metadata drives the retry schedule.
func (q *Queue) processSendMessageJob(ctx context.Context, job *Job) error {
	if q.dispatcher == nil {
		return errors.New("no dispatcher configured for send_message jobs")
	}

	payload, err := SendMessageJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid send_message payload: %w", err)
	}
	if payload.TenantID == "" || payload.To == "" {
		return errors.New("send_message payload missing tenant_id or destination")
	}

	if err := q.dispatcher.DispatchMessage(ctx, payload.TenantID, payload.To, payload.Payload); err != nil {
		return fmt.Errorf("dispatch for tenant %s: %w", payload.TenantID, err)
	}

	log.Infof("[JobQueue] Delivered message for tenant %s to %s", payload.TenantID, payload.To)
	return nil
}
