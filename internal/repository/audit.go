package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Audited entity types.
const (
	EntityCampaign     = "campaign"
	EntityContribution = "contribution"
	EntityPayout       = "payout"
)

// writeAudit stores a single immutable audit record inside the caller's transaction.
func writeAudit(ctx context.Context, qtx *Queries, entityType string, entityID uuid.UUID, action, prevState, nextState string, metadata map[string]any) error {
	var raw []byte
	if len(metadata) > 0 {
		var err error
		raw, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	if _, err := qtx.InsertAuditLog(ctx, InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   ToPgUUID(entityID),
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   raw,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}
