package app

import (
	"context"
	"time"

	"github.com/five82/eaglebridge/internal/wire"
)

// PollOnce fetches queued envelopes and logs from the Responder, drops
// envelopes already seen, and dispatches the rest. A transport failure
// hands control back to the connection machine; a malformed reply is logged
// and the connection kept.
func (i *Initiator) PollOnce(ctx context.Context) error {
	start := time.Now()
	resp, err := i.currentClient().FetchMessages(ctx, i.clientID)
	if err != nil {
		i.store.Update(nil, err)
		if wire.IsTransportFailure(err) {
			i.machine.Fail(i.groupContext(ctx), err)
			return err
		}
		i.logger.Warn("poll failed", "error", err, "kind", wire.Label(err))
		return err
	}
	i.machine.Quality().RecordSuccess(time.Since(start))

	fresh := make([]wire.Envelope, 0, len(resp.Messages))
	for _, env := range resp.Messages {
		if !i.seen.Add(env.Identity()) {
			continue
		}
		fresh = append(fresh, env)
	}
	i.store.Update(fresh, nil)
	i.store.SetQuality(i.machine.Quality().Snapshot())

	if len(resp.Logs) > 0 {
		if _, rerender := i.history.Merge(resp.Logs); rerender {
			i.store.LogsChanged()
		}
	}
	for _, env := range fresh {
		i.dispatch(ctx, env)
	}
	return nil
}

func (i *Initiator) dispatch(ctx context.Context, env wire.Envelope) {
	msg, err := wire.Decode(env)
	if err != nil {
		i.logger.Warn("dropping undecodable message", "type", env.Type, "error", err)
		return
	}

	switch m := msg.(type) {
	case wire.PortChanged:
		i.logger.Info("responder moved", "old_port", m.OldPort, "new_port", m.NewPort)
		i.adoptPort(m.NewPort)
	case wire.SettingsAck:
		i.logger.Info("settings applied by responder", "port", m.Port, "applied", m.Applied)
	case wire.FileExport:
		i.logger.Info("files received", "count", len(m.Files), "target", m.Target)
	case wire.Status:
		i.logger.Debug("responder status", "status", m.Status, "detail", m.Detail)
	case wire.Notification:
		i.history.Add(m.Level, m.Text)
	case wire.Unknown:
		i.logger.Warn("unknown message type dropped", "type", m.Type)
		return
	}

	if i.onMessage != nil {
		i.onMessage(ctx, env, msg)
	}
}

// groupContext returns the scheduler's context so that work triggered from
// inside a task outlives that task's cancellation.
func (i *Initiator) groupContext(fallback context.Context) context.Context {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.group == nil {
		return fallback
	}
	return i.group.Context()
}
