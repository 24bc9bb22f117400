package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/subsync/internal/webhook/domain"
)

const stripeSignatureHeader = "Stripe-Signature"

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
}

// HandleStripeWebhook passes the body to the pipeline byte for byte. It is
// never decoded or re-encoded before signature verification.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	start := time.Now()
	policy := s.policy.Get()

	reader := c.Request.Body
	if policy.MaxBodyBytes > 0 {
		reader = http.MaxBytesReader(c.Writer, c.Request.Body, policy.MaxBodyBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		s.rejectWebhook(c, start, readError(c, err))
		return
	}

	outcome, err := s.webhookSvc.Handle(c.Request.Context(), webhookdomain.InboundRequest{
		Body:            body,
		SignatureHeader: c.GetHeader(stripeSignatureHeader),
		ReceivedAt:      s.clock.Now(),
	})
	if err != nil {
		s.rejectWebhook(c, start, err)
		return
	}

	c.Set("event_id", outcome.EventID)
	s.metrics.RecordWebhookDelivery(strconv.Itoa(http.StatusOK), string(outcome.Status), time.Since(start))
	c.JSON(http.StatusOK, webhookResponse{Received: true, Status: string(outcome.Status)})
}

func (s *Server) rejectWebhook(c *gin.Context, start time.Time, err error) {
	status, payload := mapError(err)
	s.metrics.RecordWebhookDelivery(strconv.Itoa(status), payload.Type, time.Since(start))
	AbortWithError(c, err)
}

func readError(c *gin.Context, err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return ErrPayloadTooLarge
	case c.Request.Context().Err() != nil:
		return webhookdomain.NewCanceledError(err)
	default:
		return ErrInvalidRequest
	}
}
