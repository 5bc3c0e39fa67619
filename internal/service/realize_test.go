package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
)

// countingReserve records every phase call of the reserve register and
// fails the create call numbered failAt (1-based) when set.
type countingReserve struct {
	creates, updates, deletes []string
	failAt                    int
}

func (c *countingReserve) handler() ComplexFuncs {
	return ComplexFuncs{
		OnCreate: func(_ context.Context, _ store.Querier, entity string, _ Row) error {
			c.creates = append(c.creates, entity)
			if c.failAt > 0 && len(c.creates) == c.failAt {
				return errors.New("reservation refused")
			}
			return nil
		},
		OnUpdate: func(_ context.Context, _ store.Querier, entity string, _, _ Row) error {
			c.updates = append(c.updates, entity)
			return nil
		},
		OnDelete: func(_ context.Context, _ store.Querier, entity string, _ Row) error {
			c.deletes = append(c.deletes, entity)
			return nil
		},
	}
}

func withReserve(c *countingReserve) Option {
	return WithHandlers(NewRegistry().Complex("reserve", c.handler()))
}

func TestRealize_CascadesToEveryRelatedRow(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))

	assert.Equal(t, []string{"item_to_invoice", "item_to_invoice", "shipment", "shipment", "shipment"}, reserve.creates)
	assert.True(t, mustGet(t, svc, "invoice", f.invoice).Bool("is_realized"))
	for _, id := range f.shipments {
		assert.True(t, mustGet(t, svc, "shipment", id).Bool("is_realized"))
	}
	assert.Equal(t, int64(100-5-3), f.stock(t, svc))
}

func TestRealize_FailureLeavesNothingRealized(t *testing.T) {
	reserve := &countingReserve{failAt: 4}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)

	err := table(t, svc, "invoice").Realize(context.Background(), f.invoice, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reservation refused")
	assert.Len(t, reserve.creates, 4)

	assert.False(t, mustGet(t, svc, "invoice", f.invoice).Bool("is_realized"))
	for _, id := range f.shipments {
		assert.False(t, mustGet(t, svc, "shipment", id).Bool("is_realized"))
	}
	assert.Equal(t, int64(100), f.stock(t, svc), "register adjustments rolled back")
}

func TestRealize_Transitions(t *testing.T) {
	svc := openShop(t)
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	invoice := table(t, svc, "invoice")

	err := invoice.Unrealize(ctx, f.invoice, nil)
	assert.True(t, IsTransition(err), "a draft cannot be unrealized: %v", err)

	require.NoError(t, invoice.Realize(ctx, f.invoice, nil))
	err = invoice.Realize(ctx, f.invoice, nil)
	assert.True(t, IsTransition(err), "realize twice: %v", err)

	err = table(t, svc, "item_to_invoice").Realize(ctx, f.items[0], nil)
	assert.True(t, IsTransition(err), "line items follow their document: %v", err)
	err = table(t, svc, "cash").Unrealize(ctx, 1, nil)
	assert.True(t, IsTransition(err))
}

func TestRealize_RelatedDocumentAlreadyRealizedIsSkipped(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()

	require.NoError(t, table(t, svc, "shipment").Realize(ctx, f.shipments[0], nil))
	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))

	assert.Len(t, reserve.creates, 5, "one shipment by hand, then two items and the two remaining shipments")
	assert.Equal(t, int64(100-5-3), f.stock(t, svc))
}

func TestUnrealize_ReversesRzRegistersAndKeepsRows(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	invoice := table(t, svc, "invoice")

	require.NoError(t, invoice.Realize(ctx, f.invoice, nil))
	require.NoError(t, invoice.Unrealize(ctx, f.invoice, nil))

	inv := mustGet(t, svc, "invoice", f.invoice)
	assert.False(t, inv.Bool("is_realized"))
	assert.True(t, inv.Bool("is_active"))
	assert.Equal(t, int64(100), f.stock(t, svc))
	assert.Len(t, reserve.deletes, 5)

	items, err := table(t, svc, "item_to_invoice").FilterInt(ctx, "invoice_id", f.invoice, synth.ActiveOnly, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, id := range f.shipments {
		s := mustGet(t, svc, "shipment", id)
		assert.False(t, s.Bool("is_realized"))
		assert.True(t, s.Bool("is_active"))
	}

	require.NoError(t, invoice.Realize(ctx, f.invoice, nil), "an unrealized document can be realized again")
	assert.Equal(t, int64(92), f.stock(t, svc))
}

func TestDelete_LineItemOfDraftIsRemoved(t *testing.T) {
	svc := openShop(t)
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	items := table(t, svc, "item_to_invoice")

	require.NoError(t, items.Delete(ctx, f.items[0], nil, false))

	_, err := items.Get(ctx, f.items[0], nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(100), f.stock(t, svc))
}

func TestDelete_LineItemOfRealizedDocumentIsSoftDeleted(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	items := table(t, svc, "item_to_invoice")

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))
	require.NoError(t, items.Delete(ctx, f.items[1], nil, false))

	row := mustGet(t, svc, "item_to_invoice", f.items[1])
	assert.False(t, row.Bool("is_active"))
	assert.Equal(t, int64(92+3), f.stock(t, svc), "the item's qty is given back")
	assert.Equal(t, []string{"item_to_invoice"}, reserve.deletes)

	err := items.Delete(ctx, f.items[1], nil, false)
	assert.True(t, IsTransition(err), "deleting twice: %v", err)
}

func TestDelete_RealizedDocumentCascades(t *testing.T) {
	svc := openShop(t)
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))
	require.NoError(t, table(t, svc, "invoice").Delete(ctx, f.invoice, nil, false))

	assert.False(t, mustGet(t, svc, "invoice", f.invoice).Bool("is_active"))
	for _, id := range f.items {
		assert.False(t, mustGet(t, svc, "item_to_invoice", id).Bool("is_active"))
	}
	for _, id := range f.shipments {
		assert.False(t, mustGet(t, svc, "shipment", id).Bool("is_active"))
	}
	assert.Equal(t, int64(100), f.stock(t, svc))
}

func TestUpdate_RealizedLineItemReappliesRzRegister(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	items := table(t, svc, "item_to_invoice")

	_, err := items.Update(ctx, Row{"id": f.items[0], "qty": 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.stock(t, svc), "draft items do not touch stock")
	assert.Empty(t, reserve.updates)

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))
	assert.Equal(t, int64(100-4-3-3), f.stock(t, svc))

	_, err = items.Update(ctx, Row{"id": f.items[0], "qty": 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100-10-3-3), f.stock(t, svc))
	assert.Equal(t, []string{"item_to_invoice"}, reserve.updates)
}

func TestUpdate_KeepsLifecycleFlags(t *testing.T) {
	svc := openShop(t)
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()

	out, err := table(t, svc, "invoice").Update(ctx, Row{"id": f.invoice, "name": "INV-2", "is_realized": true, "is_active": false}, nil)
	require.NoError(t, err)
	assert.False(t, out.Bool("is_realized"))
	assert.True(t, out.Bool("is_active"))
	assert.Equal(t, "INV-2", mustGet(t, svc, "invoice", f.invoice).Text("name"))
}

func TestWriters_JoinCallerTransaction(t *testing.T) {
	svc := openShop(t)
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()

	err := store.InTx(ctx, svc.DB(), nil, func(tx *sqlx.Tx) error {
		if _, err := table(t, svc, "payment").Create(ctx, Row{"cash_id": 1, "amount": 9.0}, tx); err != nil {
			return err
		}
		if err := table(t, svc, "invoice").Realize(ctx, f.invoice, tx); err != nil {
			return err
		}
		return errors.New("caller changed its mind")
	})
	require.Error(t, err)

	assert.Equal(t, 0.0, mustGet(t, svc, "cash", 1).Float("total"))
	assert.False(t, mustGet(t, svc, "invoice", f.invoice).Bool("is_realized"))
	assert.Equal(t, int64(100), f.stock(t, svc))
}

func TestCreate_LineItemOfRealizedDocumentIsRealized(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	items := table(t, svc, "item_to_invoice")

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))
	assert.Equal(t, int64(92), f.stock(t, svc))
	reserve.creates = nil

	item := mustCreate(t, svc, "item_to_invoice", Row{"invoice_id": f.invoice, "product_id": f.product, "qty": 7})
	assert.Equal(t, int64(85), f.stock(t, svc), "the new item takes stock at once")
	assert.Equal(t, []string{"item_to_invoice"}, reserve.creates)

	require.NoError(t, items.Delete(ctx, item.ID(), nil, false))
	assert.Equal(t, int64(92), f.stock(t, svc), "only what was taken is given back")
}

func TestUpdate_LineItemMovedAcrossRealization(t *testing.T) {
	reserve := &countingReserve{}
	svc := openShop(t, withReserve(reserve))
	f := newInvoiceFixture(t, svc)
	ctx := context.Background()
	items := table(t, svc, "item_to_invoice")
	draft := mustCreate(t, svc, "invoice", Row{"name": "INV-DRAFT"}).ID()

	require.NoError(t, table(t, svc, "invoice").Realize(ctx, f.invoice, nil))
	assert.Equal(t, int64(92), f.stock(t, svc))

	// Out of the realized invoice: its qty 2 is given back.
	_, err := items.Update(ctx, Row{"id": f.items[0], "invoice_id": draft}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(94), f.stock(t, svc))
	assert.Equal(t, []string{"item_to_invoice"}, reserve.deletes)

	// Back in: the qty is taken again.
	_, err = items.Update(ctx, Row{"id": f.items[0], "invoice_id": f.invoice, "qty": 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(90), f.stock(t, svc))

	// Deleting it now gives back exactly what it holds.
	require.NoError(t, items.Delete(ctx, f.items[0], nil, false))
	assert.Equal(t, int64(94), f.stock(t, svc))
}
