package intake

import (
	"context"
)

// ExplodeInboundMessage is the attachment-extraction job of spec.md §4.3: it
// re-reads the raw MIME stored at accept time, walks it into attachments,
// stores each as a Document, and transitions the InboundMessage to PARSED
// (or FAILED if none survived). Upload-sourced messages never reach here —
// AcceptUpload already resolved their single attachment inline.
func (p *Pipeline) ExplodeInboundMessage(ctx context.Context, tenantID, inboundMessageID string) error {
	msg, err := p.store.GetInboundMessage(ctx, tenantID, inboundMessageID)
	if err != nil {
		return err
	}

	raw, err := p.objectStore.Get(ctx, msg.RawStorageKey)
	if err != nil {
		_ = p.store.UpdateInboundMessageStatus(ctx, tenantID, inboundMessageID, "FAILED")
		return err
	}

	parsed, err := WalkMIME(raw)
	if err != nil {
		_ = p.store.UpdateInboundMessageStatus(ctx, tenantID, inboundMessageID, "FAILED")
		return err
	}

	var stored int
	for _, att := range parsed.Attachments {
		doc, err := p.storeAttachment(ctx, tenantID, inboundMessageID, att)
		if err != nil {
			continue
		}
		if err := p.enqueueDocumentExtraction(tenantID, doc.ID); err != nil {
			continue
		}
		stored++
	}

	if stored == 0 {
		return p.store.UpdateInboundMessageStatus(ctx, tenantID, inboundMessageID, "FAILED")
	}
	return p.store.UpdateInboundMessageStatus(ctx, tenantID, inboundMessageID, "PARSED")
}
