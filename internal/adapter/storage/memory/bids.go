package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BidRepo implements ports.BidRepository.
type BidRepo struct{ s *Store }

func NewBidRepo(s *Store) *BidRepo { return &BidRepo{s: s} }

func (r *BidRepo) Create(_ context.Context, _ pgx.Tx, bid *domain.Bid) error {
	return r.s.write(func(d *state) error {
		for _, v := range d.bids {
			if v.InvoiceID == bid.InvoiceID && v.LenderID == bid.LenderID && v.Status != domain.BidStatusRejected {
				return fmt.Errorf("insert bid: %w", ports.ErrDuplicateKey)
			}
		}
		d.bids[bid.ID] = *bid
		return nil
	})
}

func (r *BidRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Bid, error) {
	var out *domain.Bid
	r.s.read(func(d *state) {
		if v, ok := d.bids[id]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r *BidRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Bid, error) {
	return r.GetByID(ctx, id)
}

func (r *BidRepo) GetByVirtualAccountForUpdate(ctx context.Context, _ pgx.Tx, virtualAccountID string) (*domain.Bid, error) {
	return r.GetByVirtualAccount(ctx, virtualAccountID)
}

func (r *BidRepo) GetByVirtualAccount(_ context.Context, virtualAccountID string) (*domain.Bid, error) {
	var out *domain.Bid
	r.s.read(func(d *state) {
		for _, v := range d.bids {
			if v.VirtualAccountID != nil && *v.VirtualAccountID == virtualAccountID {
				out = &v
				return
			}
		}
	})
	return out, nil
}

func (r *BidRepo) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]domain.Bid, error) {
	var out []domain.Bid
	r.s.read(func(d *state) {
		for _, v := range d.bids {
			if v.InvoiceID == invoiceID {
				out = append(out, v)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].InterestRate.Cmp(out[j].InterestRate); c != 0 {
			return c < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *BidRepo) ListByInvoiceForUpdate(ctx context.Context, _ pgx.Tx, invoiceID uuid.UUID) ([]domain.Bid, error) {
	return r.ListByInvoice(ctx, invoiceID)
}

// UpdateStatus keeps at most one accepted or financed bid per invoice.
func (r *BidRepo) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status domain.BidStatus) error {
	return r.s.write(func(d *state) error {
		v, ok := d.bids[id]
		if !ok {
			return fmt.Errorf("bid %s: %w", id, pgx.ErrNoRows)
		}
		if status == domain.BidStatusAccepted || status == domain.BidStatusFinanced {
			for _, other := range d.bids {
				if other.ID != id && other.InvoiceID == v.InvoiceID && other.HoldsInvoice() {
					return fmt.Errorf("update bid: %w", ports.ErrDuplicateKey)
				}
			}
		}
		v.Status = status
		v.UpdatedAt = time.Now().UTC()
		d.bids[id] = v
		return nil
	})
}

func (r *BidRepo) RejectSiblings(_ context.Context, _ pgx.Tx, invoiceID, acceptedID uuid.UUID) (int64, error) {
	var n int64
	err := r.s.write(func(d *state) error {
		now := time.Now().UTC()
		for id, v := range d.bids {
			if v.InvoiceID == invoiceID && id != acceptedID && v.Status == domain.BidStatusPending {
				v.Status = domain.BidStatusRejected
				v.UpdatedAt = now
				d.bids[id] = v
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *BidRepo) SetFundingOrder(_ context.Context, _ pgx.Tx, id uuid.UUID, orderID, virtualAccountID string) error {
	return r.s.write(func(d *state) error {
		v, ok := d.bids[id]
		if !ok {
			return fmt.Errorf("bid %s: %w", id, pgx.ErrNoRows)
		}
		v.GatewayOrderID = &orderID
		v.VirtualAccountID = &virtualAccountID
		v.UpdatedAt = time.Now().UTC()
		d.bids[id] = v
		return nil
	})
}
