package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InvoiceRepo implements ports.InvoiceRepository.
type InvoiceRepo struct{ s *Store }

func NewInvoiceRepo(s *Store) *InvoiceRepo { return &InvoiceRepo{s: s} }

// Create enforces both partial unique keys; rejected invoices never conflict.
func (r *InvoiceRepo) Create(_ context.Context, _ pgx.Tx, inv *domain.Invoice) error {
	return r.s.write(func(d *state) error {
		if inv.Status != domain.InvoiceStatusRejected {
			for _, v := range d.invoices {
				if v.Status == domain.InvoiceStatusRejected || v.InvoiceNumber != inv.InvoiceNumber {
					continue
				}
				if v.SellerID == inv.SellerID || v.SellerTaxIDHash == inv.SellerTaxIDHash {
					return fmt.Errorf("insert invoice: %w", ports.ErrDuplicateKey)
				}
			}
		}
		d.invoices[inv.ID] = *inv
		return nil
	})
}

func (r *InvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Invoice, error) {
	var out *domain.Invoice
	r.s.read(func(d *state) {
		if v, ok := d.invoices[id]; ok {
			out = &v
		}
	})
	return out, nil
}

func (r *InvoiceRepo) GetByIDForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *InvoiceRepo) UpdateStatus(_ context.Context, _ pgx.Tx, inv *domain.Invoice) error {
	return r.s.write(func(d *state) error {
		v, ok := d.invoices[inv.ID]
		if !ok {
			return fmt.Errorf("invoice %s: %w", inv.ID, pgx.ErrNoRows)
		}
		v.Status = inv.Status
		v.LenderID = inv.LenderID
		v.RejectionReason = inv.RejectionReason
		v.UpdatedAt = time.Now().UTC()
		d.invoices[inv.ID] = v
		return nil
	})
}

func (r *InvoiceRepo) ExistsBySellerNumber(_ context.Context, sellerID uuid.UUID, invoiceNumber string) (bool, error) {
	found := false
	r.s.read(func(d *state) {
		for _, v := range d.invoices {
			if v.SellerID == sellerID && v.InvoiceNumber == invoiceNumber && v.Status != domain.InvoiceStatusRejected {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *InvoiceRepo) ExistsByTaxPair(_ context.Context, sellerTaxIDHash, invoiceNumber string, exclude *uuid.UUID) (bool, error) {
	found := false
	r.s.read(func(d *state) {
		for _, v := range d.invoices {
			if exclude != nil && v.ID == *exclude {
				continue
			}
			if v.SellerTaxIDHash == sellerTaxIDHash && v.InvoiceNumber == invoiceNumber && v.Status != domain.InvoiceStatusRejected {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *InvoiceRepo) List(_ context.Context, params ports.InvoiceListParams) ([]domain.Invoice, int64, error) {
	var matched []domain.Invoice
	r.s.read(func(d *state) {
		for _, v := range d.invoices {
			if params.SellerID != nil && v.SellerID != *params.SellerID {
				continue
			}
			if len(params.Statuses) > 0 && !slices.Contains(params.Statuses, v.Status) {
				continue
			}
			if params.Unclaimed && claimed(d, v.ID) {
				continue
			}
			matched = append(matched, v)
		}
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	start, end := paginate(params.Page, params.PageSize, len(matched))
	return matched[start:end], int64(len(matched)), nil
}

// claimed reports whether any bid on the invoice has been accepted or financed.
func claimed(d *state, invoiceID uuid.UUID) bool {
	for _, b := range d.bids {
		if b.InvoiceID == invoiceID && b.HoldsInvoice() {
			return true
		}
	}
	return false
}
