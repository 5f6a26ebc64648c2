package device

import (
	"context"
	"time"

	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
	"github.com/Xylopyrographer/CabinMonitor/internal/notify"
)

// probeFresh reports whether the last probe succeeded recently enough to
// skip probing before a transfer.
func (d *Device) probeFresh(now time.Time) bool {
	return d.probeKnown && d.probeOK && now.Sub(d.lastProbe) <= d.cfg.ProbeMaxAge
}

// probe checks the upload server. It notifies on every scheduled check
// (always) and otherwise only when the result changes.
func (d *Device) probe(ctx context.Context, now time.Time, always bool) bool {
	err := d.uploader.Probe(ctx)
	ok := err == nil
	changed := !d.probeKnown || d.probeOK != ok
	d.probeKnown, d.probeOK, d.lastProbe = true, ok, now

	detail := "ok"
	if ok {
		d.log.Info().Msg("upload server reachable")
	} else {
		detail = err.Error()
		d.log.Warn().Err(err).Msg("upload server unreachable")
	}
	d.publish(Event{Time: now, Type: EventConnectivity, Detail: detail})

	if always || changed {
		if ok {
			d.notify(ctx, notify.CommunicationOK)
		} else {
			d.notify(ctx, notify.NoCommunication)
		}
	}
	return ok
}

func (d *Device) stepUploading(ctx context.Context, now time.Time) {
	if d.activity(now) {
		d.resumeCapture(now)
		return
	}

	if !d.probeFresh(now) && !d.probe(ctx, now, false) {
		d.finishCycle(UploadOutcome{Skipped: true}, now)
		d.toIdle(now)
		return
	}

	out, err := d.uploadCycle(ctx)
	now = d.now()
	if err != nil {
		d.log.Warn().Err(err).Msg("list stored captures")
		d.finishCycle(UploadOutcome{Skipped: true}, now)
		d.toIdle(now)
		return
	}
	d.finishCycle(out, now)

	switch {
	case out.Interrupted && ctx.Err() != nil:
		d.toIdle(now)
	case out.Interrupted:
		d.resumeCapture(now)
	case out.Complete():
		if err := d.storage.DeleteAll(); err != nil {
			d.log.Warn().Err(err).Msg("delete uploaded captures")
		} else {
			d.confirmed = make(map[string]bool)
			d.stored = 0
		}
		d.interrupted = false
		d.log.Info().Int("files", out.Succeeded).Msg("upload complete")
		d.toIdle(now)
	default:
		d.log.Warn().Int("sent", out.Succeeded).Int("attempted", out.Attempted).Msg("upload incomplete, will retry later")
		d.toIdle(now)
	}
}

// resumeCapture abandons the upload for a new capture episode. Files not
// yet confirmed stay queued for the next cycle.
func (d *Device) resumeCapture(now time.Time) {
	d.log.Info().Msg("activity during upload, resuming capture")
	d.interrupted = true
	d.lastActivity = now
	d.transition(Capturing, now)
}

// uploadCycle sends every stored file the server has not confirmed yet.
// Activity is checked between files, never in the middle of one.
func (d *Device) uploadCycle(ctx context.Context) (UploadOutcome, error) {
	var out UploadOutcome
	names, err := d.storage.List()
	if err != nil {
		return out, err
	}
	d.stored = len(names)

	var pending []string
	for _, n := range names {
		if !d.confirmed[n] {
			pending = append(pending, n)
		}
	}
	if d.interrupted {
		d.log.Info().Int("files", len(pending)).Msg("resuming interrupted upload")
	}

	for i, name := range pending {
		if i > 0 && d.activity(d.now()) {
			out.Interrupted = true
			break
		}
		if ctx.Err() != nil {
			out.Interrupted = true
			break
		}
		out.Attempted++

		data, err := d.storage.Read(name)
		if err == nil {
			err = d.uploader.Upload(ctx, name, data)
		}
		if err != nil {
			d.log.Warn().Err(err).Str("file", name).Msg("upload failed")
			continue
		}
		out.Succeeded++
		d.confirmed[name] = true
		d.log.Debug().Str("file", name).Int("n", i+1).Int("of", len(pending)).Msg("uploaded")
	}
	return out, nil
}

func (d *Device) finishCycle(out UploadOutcome, now time.Time) {
	metrics.RecordUploadCycle(out.Label(), out.Succeeded, out.Attempted-out.Succeeded)
	d.lastOutcome = &out
	d.lastUploadAt = now
	d.publish(Event{Time: now, Type: EventUpload, Detail: out.Label(), Upload: &out})
}
