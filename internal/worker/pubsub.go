package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	refreshJob       *RefreshJob
	maintenanceJob   *MaintenanceJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	MaintenanceJob   *MaintenanceJob
	Logger           zerolog.Logger
}

// RefreshMessage represents a refresh job message. A message carrying only
// a site_id triggers a single-site refresh.
type RefreshMessage struct {
	JobType    string `json:"job_type,omitempty"`
	SiteID     string `json:"site_id,omitempty"`
	RefreshAll bool   `json:"refresh_all,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		refreshJob:       cfg.RefreshJob,
		maintenanceJob:   cfg.MaintenanceJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	// Parse message.
	var refreshMsg RefreshMessage
	if err := json.Unmarshal(msg.Data, &refreshMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	// Handle based on job type. A missing job_type means site refresh so
	// that bare {"site_id": "..."} messages work.
	var err error
	switch refreshMsg.JobType {
	case "site_refresh", "":
		err = h.handleSiteRefresh(ctx, refreshMsg)
	case "prune_history":
		err = h.handlePruneHistory(ctx)
	default:
		logger.Warn().Str("job_type", refreshMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	duration := time.Since(startTime)
	logger.Info().
		Str("job_type", refreshMsg.JobType).
		Dur("duration", duration).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleSiteRefresh(ctx context.Context, msg RefreshMessage) error {
	if msg.SiteID != "" && !msg.RefreshAll {
		if _, ok := h.refreshJob.registry.Get(msg.SiteID); !ok {
			// Unknown sites stay unknown on redelivery; ack them.
			h.logger.Warn().Str("site_id", msg.SiteID).Msg("refresh requested for unregistered site")
			return nil
		}

		h.logger.Info().
			Str("site_id", msg.SiteID).
			Msg("starting site refresh")

		return h.refreshJob.RefreshSite(ctx, msg.SiteID)
	}

	result := h.refreshJob.Run(ctx)

	// Consider it successful if more than half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalSites)
	}

	return nil
}

func (h *PubSubHandler) handlePruneHistory(ctx context.Context) error {
	if h.maintenanceJob == nil {
		return fmt.Errorf("history archive is not configured")
	}

	_, err := h.maintenanceJob.Run(ctx)
	return err
}
