package web

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/deemkeen/inboxd/activitypub"
	"github.com/gin-gonic/gin"
)

// Inbox accepts the raw body of an inbound activity together with the
// request it arrived on.
type Inbox interface {
	Receive(ctx context.Context, body []byte, req *http.Request) (*activitypub.Outcome, error)
}

// StatusFor maps a processing result to the status returned to the peer.
func StatusFor(err error) int {
	switch activitypub.Classify(err) {
	case activitypub.ClassNone, activitypub.ClassUnsupported:
		return http.StatusAccepted
	case activitypub.ClassValidation:
		return http.StatusBadRequest
	case activitypub.ClassVerification:
		if errors.Is(err, activitypub.ErrSignatureInvalid) || errors.Is(err, activitypub.ErrActorUnresolvable) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case activitypub.ClassNotFound:
		return http.StatusNotFound
	case activitypub.ClassResolution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func handleInbox(inbox Inbox, target func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if target != nil {
			if err := target(c); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Inbox not found"})
				return
			}
		}

		body, err := c.GetRawData()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
				return
			}
			log.Printf("Inbox: Failed to read body: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
			return
		}

		// processing outlives a peer that hangs up; the dispatcher bounds it
		ctx := context.WithoutCancel(c.Request.Context())
		_, err = inbox.Receive(ctx, body, c.Request)

		status := StatusFor(err)
		if status < http.StatusBadRequest {
			c.Status(status)
			return
		}

		class := activitypub.Classify(err)
		if status >= http.StatusInternalServerError {
			log.Printf("Inbox: Internal error from %s: %v", c.ClientIP(), err)
			c.JSON(status, gin.H{"error": string(class)})
			return
		}
		c.JSON(status, gin.H{"error": string(class), "detail": err.Error()})
	}
}
