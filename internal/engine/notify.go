package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lazypower/newswire/internal/delivery"
	"github.com/lazypower/newswire/internal/logging"
	"github.com/lazypower/newswire/internal/metrics"
	"github.com/lazypower/newswire/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const notifyBodyRunes = 180

// NotifyReport summarizes one targeting pass.
type NotifyReport struct {
	Targeted int
	Sent     int
	Failed   int
	Pruned   int
}

// Targeter fans a new item out to every device subscribed to one of its
// categories and prunes devices whose tokens are reported invalid.
type Targeter struct {
	devices   DeviceStore
	sender    delivery.Sender
	batchSize int
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewTargeter creates a Targeter. batchSize caps batches below the
// sender's own maximum; limiter, when non-nil, paces batches.
func NewTargeter(devices DeviceStore, sender delivery.Sender, batchSize int, limiter *rate.Limiter) *Targeter {
	return &Targeter{
		devices:   devices,
		sender:    sender,
		batchSize: batchSize,
		limiter:   limiter,
		log:       logging.Component("notify"),
	}
}

// Notify delivers one message per subscribed device. Send failures for a
// batch are logged and the remaining batches still go out. Only a context
// error stops the pass early.
func (t *Targeter) Notify(ctx context.Context, it *store.Item) (NotifyReport, error) {
	var report NotifyReport
	targets, err := t.devices.DeviceTokensForCategories(ctx, it.Categories)
	if err != nil {
		return report, fmt.Errorf("notify item %d: %w", it.ID, err)
	}
	report.Targeted = len(targets)
	if len(targets) == 0 {
		return report, nil
	}

	msgs := make([]delivery.Message, len(targets))
	for i, dt := range targets {
		msgs[i] = buildMessage(it, dt)
	}

	log := logging.Ctx(ctx, t.log)
	size := t.chunkSize()
	for start := 0; start < len(msgs); start += size {
		end := min(start+size, len(msgs))
		batch := msgs[start:end]

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("notify item %d: %w", it.ID, err)
			}
		}

		results, err := t.sender.Send(ctx, batch)
		if err != nil {
			log.Warn().Err(err).Int64("item_id", it.ID).Int("batch", len(batch)).Msg("delivery batch failed")
			report.Failed += len(batch)
			metrics.Notifications.WithLabelValues("failed").Add(float64(len(batch)))
			continue
		}
		t.applyResults(ctx, batch, results, &report)
	}

	log.Info().
		Int64("item_id", it.ID).
		Int("targeted", report.Targeted).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("pruned", report.Pruned).
		Msg("notified")
	return report, nil
}

func (t *Targeter) applyResults(ctx context.Context, batch []delivery.Message, results []delivery.Result, report *NotifyReport) {
	for i, msg := range batch {
		if i >= len(results) {
			// Missing result: treat as transient so the device is kept.
			report.Failed++
			metrics.Notifications.WithLabelValues("failed").Inc()
			continue
		}
		res := results[i]
		if res.OK {
			report.Sent++
			metrics.Notifications.WithLabelValues("sent").Inc()
			continue
		}
		report.Failed++
		metrics.Notifications.WithLabelValues("failed").Inc()
		if res.Class != delivery.ClassTokenInvalid {
			continue
		}

		deviceID, token := res.DeviceID, res.Token
		if deviceID == "" {
			deviceID, token = msg.DeviceID, msg.Token
		}
		removed, err := t.devices.PruneDevice(ctx, deviceID, token)
		if err != nil {
			logging.Ctx(ctx, t.log).Warn().Err(err).Str("device_id", deviceID).Msg("prune device failed")
			continue
		}
		if removed {
			report.Pruned++
			metrics.DevicesPruned.Inc()
		}
	}
}

func (t *Targeter) chunkSize() int {
	size := t.sender.MaxBatch()
	if t.batchSize > 0 && (size <= 0 || t.batchSize < size) {
		size = t.batchSize
	}
	if size <= 0 {
		size = 100
	}
	return size
}

func buildMessage(it *store.Item, dt store.DeviceToken) delivery.Message {
	id := strconv.FormatInt(it.ID, 10)
	data := map[string]string{
		"item_id":  id,
		"category": it.TopCategory,
	}
	if it.URL != "" {
		data["url"] = it.URL
	}
	if it.ImageURL != "" {
		data["image"] = it.ImageURL
	}
	return delivery.Message{
		DeviceID: dt.DeviceID,
		Token:    dt.Token,
		Title:    fmt.Sprintf("[%s] %s", it.TopCategory, it.Title),
		Body:     truncateClean(it.Summary, notifyBodyRunes),
		Link:     "item/" + id,
		Data:     data,
	}
}
