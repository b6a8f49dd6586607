package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/tillq/internal/syncer"
	"github.com/angelmondragon/tillq/internal/worker"
	"github.com/angelmondragon/tillq/pkg/enums"
	pkgerrors "github.com/angelmondragon/tillq/pkg/errors"
	"github.com/angelmondragon/tillq/pkg/logger"
	"github.com/angelmondragon/tillq/pkg/outbox"
)

type staleChecker interface {
	CheckPendingOperations(ctx context.Context, threshold time.Duration) (outbox.StaleReport, error)
}

type drainTrigger interface {
	Trigger(ctx context.Context, reason string)
}

type BridgeParams struct {
	Center    *Center
	Scheduler worker.Scheduler
	Queue     staleChecker
	Logger    *logger.Logger
	// Drainer is optional. When set, sync and retry actions also start a drain
	// in this process instead of waiting for the foreground to ask for one.
	Drainer        drainTrigger
	StaleThreshold time.Duration
}

// Bridge connects queue state, displayed notifications, and the foreground channel.
type Bridge struct {
	center    *Center
	scheduler worker.Scheduler
	queue     staleChecker
	drainer   drainTrigger
	logg      *logger.Logger
	threshold time.Duration
}

func NewBridge(params BridgeParams) (*Bridge, error) {
	if params.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	center := params.Center
	if center == nil {
		center = NewCenter(nil)
	}
	threshold := params.StaleThreshold
	if threshold <= 0 {
		threshold = outbox.DefaultStaleThreshold
	}
	b := &Bridge{
		center:    center,
		scheduler: params.Scheduler,
		queue:     params.Queue,
		logg:      params.Logger,
		threshold: threshold,
	}
	if params.Drainer != nil {
		b.drainer = params.Drainer
	}
	return b, nil
}

func (b *Bridge) Center() *Center { return b.center }

// HandleMessage applies a request sent by the foreground.
func (b *Bridge) HandleMessage(ctx context.Context, msg worker.Message) error {
	switch msg.Type {
	case enums.MessageShowSyncNotification:
		tag := msg.Tag
		if tag == "" {
			tag = TagSync
		}
		title := msg.Title
		if title == "" {
			title = "Syncing pending changes"
		}
		b.center.Show(Notification{Tag: tag, Title: title, Body: msg.Body, Actions: msg.Actions})
		return nil
	case enums.MessageCloseNotification:
		if strings.TrimSpace(msg.Tag) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "tag is required to close a notification")
		}
		b.center.Close(msg.Tag)
		return nil
	case enums.MessageNotificationAction:
		return b.HandleAction(ctx, msg.Action, msg.Tag)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

// CheckStale counts operations older than the threshold and, when there are
// any, shows the stale reminder offering a sync action.
func (b *Bridge) CheckStale(ctx context.Context) (outbox.StaleReport, error) {
	report, err := b.queue.CheckPendingOperations(ctx, b.threshold)
	if err != nil {
		return report, err
	}
	if report.Count == 0 {
		b.center.Close(TagStale)
		return report, nil
	}

	n := b.center.Show(Notification{
		Tag:     TagStale,
		Title:   "Pending changes not synced",
		Body:    fmt.Sprintf("%d change(s) have been waiting more than %s", report.Count, report.Threshold),
		Actions: []enums.NotificationAction{enums.NotificationActionSync},
	})
	payload := map[string]any{
		"count":     report.Count,
		"threshold": report.Threshold.String(),
	}
	if report.Oldest != nil {
		payload["oldest"] = report.Oldest.UTC().Format(time.RFC3339)
	}
	if err := b.scheduler.PostMessage(ctx, worker.Message{
		Type:    enums.MessageStaleOperations,
		Tag:     n.Tag,
		Title:   n.Title,
		Body:    n.Body,
		Actions: n.Actions,
		Payload: payload,
	}); err != nil {
		return report, err
	}
	return report, nil
}

// HandleAction closes the notification the action came from and forwards the
// action to the foreground. Messages wait in the scheduler until one attaches.
func (b *Bridge) HandleAction(ctx context.Context, action enums.NotificationAction, tag string) error {
	if !action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification action %q", action))
	}
	if tag != "" {
		b.center.Close(tag)
	}

	ctx = b.logg.WithFields(ctx, map[string]any{"action": string(action), "tag": tag})
	if err := b.scheduler.PostMessage(ctx, worker.Message{
		Type:   enums.MessageNotificationAction,
		Tag:    tag,
		Action: action,
	}); err != nil {
		return err
	}
	if action.RequestsDrain() && b.drainer != nil {
		b.drainer.Trigger(ctx, "notification_"+string(action))
	}
	b.logg.Info(ctx, "notification action forwarded")
	return nil
}

// OnDrainComplete reports a finished drain to the foreground and clears the
// sync prompts once nothing failed.
func (b *Bridge) OnDrainComplete(ctx context.Context, res syncer.Result) {
	if res.Attempted() == 0 && res.Deferred == 0 {
		return
	}
	if len(res.Failures) == 0 && res.Deferred == 0 {
		b.center.Close(TagSync)
		b.center.Close(TagStale)
	}
	msg := worker.Message{
		Type: enums.MessageSyncResult,
		Tag:  TagSync,
		Payload: map[string]any{
			"succeeded": res.Succeeded,
			"failed":    res.Failed,
			"deferred":  res.Deferred,
		},
	}
	if err := b.scheduler.PostMessage(ctx, msg); err != nil {
		b.logg.Error(ctx, "post sync result failed", err)
	}
}
