package memory

import (
	"context"
	"time"

	"invoice-financing/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository. Audit entries are not part of
// transaction snapshots.
type AuditRepo struct{ s *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(_ context.Context, log *domain.AuditLog) error {
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	r.s.audit = append(r.s.audit, *log)
	return nil
}

// Entries returns a copy of the recorded audit entries.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.s.auditMu.Lock()
	defer r.s.auditMu.Unlock()
	return append([]domain.AuditLog(nil), r.s.audit...)
}

func nowUTC() time.Time { return time.Now().UTC() }
