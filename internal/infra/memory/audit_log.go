package memory

import (
	"context"
	"slices"
	"time"

	"fulfillment/internal/domain/model"
	repo "fulfillment/internal/repository"
)

type auditLogRepo struct {
	st *state
}

func (r *auditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = r.st.nextID("audit_logs")
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	r.st.auditLogs = append(r.st.auditLogs, log)
	return nil
}

// 新しい順
func (r *auditLogRepo) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs := slices.Clone(r.st.auditLogs)
	slices.Reverse(logs)

	out := []model.AuditLog{}
	for _, l := range logs {
		if !matchAudit(l, f) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func matchAudit(l model.AuditLog, f repo.AuditLogFilter) bool {
	switch {
	case f.ActorUserID != nil && l.ActorUserID != *f.ActorUserID:
		return false
	case f.Action != nil && l.Action != *f.Action:
		return false
	case f.ResourceType != nil && l.ResourceType != *f.ResourceType:
		return false
	case f.ResourceID != nil && l.ResourceID != *f.ResourceID:
		return false
	case f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo):
		return false
	}
	return true
}
