package main

import (
	"context"

	"github.com/fastidp/fastidp-backend/internal/automation"
	"github.com/fastidp/fastidp-backend/pkg/bigquery"
	"github.com/fastidp/fastidp-backend/pkg/config"
	"github.com/fastidp/fastidp-backend/pkg/logger"
	"github.com/fastidp/fastidp-backend/pkg/metrics"
	"github.com/fastidp/fastidp-backend/pkg/pubsub"
)

// buildTrigger assembles the automation sinks enabled by configuration. With
// nothing configured, paid applications are only logged.
func buildTrigger(ctx context.Context, cfg *config.Config, logg *logger.Logger, m *metrics.FulfillmentMetrics) (automation.Trigger, func(), error) {
	var (
		sinks   []automation.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logg.Error(context.Background(), "error closing automation sink", err)
			}
		}
	}

	if cfg.Automation.WebhookURL != "" {
		httpTrigger, err := automation.NewHTTPTrigger(cfg.Automation.WebhookURL, cfg.Automation.WebhookSecret, cfg.Automation.Timeout)
		if err != nil {
			return nil, closeAll, err
		}
		sinks = append(sinks, automation.Sink{Name: "webhook", Trigger: httpTrigger})
	}

	if cfg.FeatureFlags.EnablePubSubTrigger {
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, client.Close)
		pubsubTrigger, err := automation.NewPubSubTrigger(client.ApplicationsPublisher())
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, automation.Sink{Name: "pubsub", Trigger: pubsubTrigger})
	}

	if cfg.FeatureFlags.EnableBigQuerySink {
		client, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, client.Close)
		if err := client.EnsureTable(ctx, client.ApplicationsTable(), automation.PaidApplicationSchema, automation.PaidApplicationPartitionField); err != nil {
			closeAll()
			return nil, func() {}, err
		}
		recorder, err := automation.NewBigQueryRecorder(client, client.ApplicationsTable(), automation.RetryPolicy{})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, automation.Sink{Name: "bigquery", Trigger: recorder})
	}

	if len(sinks) == 0 {
		sinks = append(sinks, automation.Sink{Name: "log", Trigger: automation.NewLogTrigger(logg)})
	}

	fanOut := automation.NewFanOut(logg, m, sinks...)
	logg.Info(logg.WithField(ctx, "sinks", fanOut.Sinks()), "automation trigger configured")
	return fanOut, closeAll, nil
}
