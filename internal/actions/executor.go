// Package actions executes side effects planned after the primary task.
package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/horizon/internal/turn"
)

// Input is what a side effect may read besides its own params.
type Input struct {
	Snapshot turn.Snapshot
	// Resolved holds parameters settled during aggregation, e.g. email_to or
	// the attachment produced by an earlier export.
	Resolved map[string]any
}

func (in Input) resolved(key string) string {
	return turn.StringParam(in.Resolved, key)
}

type Config struct {
	ExportDir   string
	ArtifactDir string
	MailFrom    string
	Mailer      Mailer
	Notifier    Notifier
	Webhook     *WebhookSender
}

// Executor runs one side effect at a time. It is safe for concurrent use by
// separate turns.
type Executor struct {
	exportDir   string
	artifactDir string
	mailFrom    string
	mailer      Mailer
	notifier    Notifier
	webhook     *WebhookSender
	now         func() time.Time
}

func New(cfg Config) *Executor {
	if cfg.ExportDir == "" {
		cfg.ExportDir = "exports"
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "artifacts"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = "horizon@localhost"
	}
	if cfg.Mailer == nil {
		cfg.Mailer = NewLogMailer()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NewFeedNotifier(DefaultFeedSize)
	}
	return &Executor{
		exportDir:   cfg.ExportDir,
		artifactDir: cfg.ArtifactDir,
		mailFrom:    cfg.MailFrom,
		mailer:      cfg.Mailer,
		notifier:    cfg.Notifier,
		webhook:     cfg.Webhook,
		now:         time.Now,
	}
}

// Execute runs spec and always returns a result. Unknown types are ignored,
// known types report success or failed.
func (e *Executor) Execute(ctx context.Context, spec turn.SideEffectSpec, in Input) (res turn.SideEffectResult) {
	res = turn.SideEffectResult{Type: spec.Type}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("side_effect", string(spec.Type)).Msg("side effect panicked")
			res.Status = turn.StatusFailed
			res.Detail = fmt.Sprintf("panic: %v", r)
			res.Output = nil
		}
	}()

	var (
		out map[string]any
		err error
	)
	params := spec.Params
	if params == nil {
		params = map[string]any{}
	}
	switch spec.Type {
	case turn.SideEffectExport:
		out, err = e.export(params, in)
	case turn.SideEffectEmail:
		out, err = e.email(ctx, params, in)
	case turn.SideEffectNotify:
		out, err = e.notify(ctx, params, in)
	case turn.SideEffectWebhook:
		out, err = e.sendWebhook(ctx, params, in)
	case turn.SideEffectCreate:
		out, err = e.create(params, in)
	case turn.SideEffectSave:
		out, err = e.save(params, in)
	default:
		res.Status = turn.StatusIgnored
		res.Detail = fmt.Sprintf("unknown side effect %q", spec.Type)
		return res
	}
	if err != nil {
		log.Warn().Err(err).Str("side_effect", string(spec.Type)).Str("chat_id", in.Snapshot.ChatID).Msg("side effect failed")
		res.Status = turn.StatusFailed
		res.Detail = err.Error()
		return res
	}
	res.Status = turn.StatusSuccess
	res.Output = out
	res.Detail = describe(spec.Type, out)
	return res
}

func describe(effect turn.SideEffect, out map[string]any) string {
	switch effect {
	case turn.SideEffectExport:
		return fmt.Sprintf("exported %v rows to %v", out["rows"], out["path"])
	case turn.SideEffectEmail:
		return fmt.Sprintf("email sent to %v", out["to"])
	case turn.SideEffectNotify:
		return "notification delivered"
	case turn.SideEffectWebhook:
		return fmt.Sprintf("webhook delivered with status %v", out["status"])
	case turn.SideEffectCreate:
		return fmt.Sprintf("created %v", out["path"])
	case turn.SideEffectSave:
		return fmt.Sprintf("saved %v", out["path"])
	default:
		return ""
	}
}

var actionAliases = map[string]struct {
	effect turn.SideEffect
	params map[string]any
}{
	"notify_user":   {effect: turn.SideEffectNotify},
	"send_notice":   {effect: turn.SideEffectNotify},
	"webhook_call":  {effect: turn.SideEffectWebhook},
	"call_webhook":  {effect: turn.SideEffectWebhook},
	"export_csv":    {effect: turn.SideEffectExport, params: map[string]any{"format": "csv"}},
	"export_excel":  {effect: turn.SideEffectExport, params: map[string]any{"format": "excel"}},
	"export_data":   {effect: turn.SideEffectExport},
	"send_report":   {effect: turn.SideEffectEmail},
	"create_record": {effect: turn.SideEffectCreate},
	"save_result":   {effect: turn.SideEffectSave},
}

// ActionSpec maps an action subtask name onto a side effect. Params given in
// the subtask win over the alias defaults.
func ActionSpec(action string, params map[string]any) (turn.SideEffectSpec, bool) {
	if e, ok := turn.ParseSideEffect(action); ok {
		return turn.SideEffectSpec{Type: e, Params: turn.CloneParams(params)}, true
	}
	alias, ok := actionAliases[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return turn.SideEffectSpec{}, false
	}
	merged := turn.CloneParams(alias.params)
	for k, v := range params {
		merged[k] = v
	}
	return turn.SideEffectSpec{Type: alias.effect, Params: merged}, true
}
