// Package pipeline runs the analysis step: build a prompt from a context
// snapshot, call the configured LLM client (each provider client rejects a
// malformed reply), and commit the resulting insight to the store. One request/response per tick.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/llm"
	"github.com/heytcass/jasper/internal/llm/types"
	"github.com/heytcass/jasper/internal/model"
	"github.com/heytcass/jasper/internal/store"
)

const systemPrompt = `You summarize a person's upcoming calendar and task context into one short insight.
Reply with a single JSON object: {"emoji": "<one emoji>", "preview": "<under 80 chars>", "body": "<1-3 sentences>", "urgency": <integer 0-10>}.
Do not include any text outside the JSON object.`

// maxItemsInBundle bounds the prompt body; when a snapshot holds more
// items than this, the oldest (by starts_at) are dropped first so the
// bundle still fits the provider's context window.
const maxItemsInBundle = 200

// Pipeline wires an LLM client to the insight store.
type Pipeline struct {
	client llm.Client
	store  store.Store
	log    *zap.Logger
}

func New(client llm.Client, st store.Store, log *zap.Logger) *Pipeline {
	return &Pipeline{client: client, store: st, log: log}
}

// Run builds a prompt from snapshot, calls the LLM (the provider client
// returns jasperr.ResponseMalformed for a malformed reply), and commits the
// resulting insight. It only advances the store's current-insight pointer
// (via Append) on full success; any failure along the way leaves the prior
// current insight and pointer untouched, per the spec's
// baseline-advances-only-on-success rule.
func (p *Pipeline) Run(ctx context.Context, snapshot model.ContextSnapshot, fingerprint, provider, modelName string) (model.Insight, error) {
	bundle := buildBundle(snapshot)

	resp, err := p.client.Summarize(ctx, types.SummarizeRequest{
		SystemPrompt: systemPrompt,
		ContextBody:  bundle,
		MaxTokens:    512,
	})
	if err != nil {
		if p.log != nil {
			p.log.Warn("analysis pipeline run failed", zap.Error(err))
		}
		return model.Insight{}, err
	}

	insight := model.Insight{
		CreatedAt:          time.Now(),
		Emoji:              resp.Emoji,
		Preview:            resp.Preview,
		Body:               resp.Body,
		Urgency:            model.Urgency(resp.Urgency),
		ContextFingerprint: fingerprint,
		Provider:           provider,
		Model:              modelName,
	}

	saved, err := p.store.Append(ctx, insight)
	if err != nil {
		return model.Insight{}, jasperr.Wrap(jasperr.StoreError, "pipeline.Run", err)
	}
	if p.log != nil {
		p.log.Info("insight committed", zap.Int64("insight_id", saved.ID), zap.Int("urgency", int(saved.Urgency)))
	}
	return saved, nil
}

// buildBundle renders the snapshot's items, oldest-first, truncating to
// maxItemsInBundle when the snapshot is larger.
func buildBundle(snapshot model.ContextSnapshot) string {
	items := snapshot.Items
	if len(items) > maxItemsInBundle {
		items = items[len(items)-maxItemsInBundle:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Context captured at %s", snapshot.TakenAt.UTC().Format(time.RFC3339))
	if snapshot.Partial {
		fmt.Fprintf(&b, " (partial: %s unavailable)", strings.Join(snapshot.FailedSources, ", "))
	}
	b.WriteString("\n\n")

	for _, item := range items {
		fmt.Fprintf(&b, "- [%s] %s", item.Kind, item.Title)
		if item.StartsAt != nil {
			fmt.Fprintf(&b, " at %s", item.StartsAt.Local().Format("Mon 15:04"))
		}
		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", item.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
