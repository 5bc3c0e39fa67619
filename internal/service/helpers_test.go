package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/migrate"
	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/synth"
	"github.com/roach88/erpgen/internal/testutil"
)

// openShop returns a service over a fresh database holding the shop schema.
// The "reserve" complex register is a no-op unless opts replace the
// registry.
func openShop(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return openSchema(t, testutil.ShopSchema, opts...)
}

func openSchema(t *testing.T, src string, opts ...Option) *Service {
	t.Helper()
	m, err := schema.Parse("models.json", []byte(src))
	require.NoError(t, err)
	plan, err := synth.Build(m)
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for _, step := range migrate.Plan(nil, m, schema.ChangeDirective{}).Steps {
		_, err := s.DB().Exec(step.SQL)
		require.NoError(t, err, step.SQL)
	}

	base := []Option{
		WithClock(testutil.NewDeterministicClock()),
		WithHandlers(NewRegistry().Complex("reserve", ComplexFuncs{})),
	}
	return New(s.DB(), plan, append(base, opts...)...)
}

func table(t *testing.T, svc *Service, name string) *Table {
	t.Helper()
	tbl, err := svc.Entity(name)
	require.NoError(t, err)
	return tbl
}

func mustCreate(t *testing.T, svc *Service, entity string, row Row) Row {
	t.Helper()
	out, err := table(t, svc, entity).Create(context.Background(), row, nil)
	require.NoError(t, err)
	return out
}

func mustGet(t *testing.T, svc *Service, entity string, id int64) Row {
	t.Helper()
	out, err := table(t, svc, entity).Get(context.Background(), id, nil)
	require.NoError(t, err)
	return out
}

// invoiceFixture is a draft invoice with two items (qty 2 and 3) and three
// shipments (qty 1 each) against one product with stock 100.
type invoiceFixture struct {
	product   int64
	invoice   int64
	items     []int64
	shipments []int64
}

func newInvoiceFixture(t *testing.T, svc *Service) invoiceFixture {
	t.Helper()
	var f invoiceFixture
	f.product = mustCreate(t, svc, "product", Row{"name": "bolt", "stock": 100}).ID()
	cash := mustCreate(t, svc, "cash", Row{"name": "main"}).ID()
	buyer := mustCreate(t, svc, "contragent", Row{"name": "Acme"}).ID()
	f.invoice = mustCreate(t, svc, "invoice", Row{"name": "INV-1", "contragent_id": buyer, "cash_id": cash}).ID()
	for _, qty := range []int{2, 3} {
		f.items = append(f.items, mustCreate(t, svc, "item_to_invoice", Row{"invoice_id": f.invoice, "product_id": f.product, "qty": qty, "price": 1.5}).ID())
	}
	for i := 0; i < 3; i++ {
		f.shipments = append(f.shipments, mustCreate(t, svc, "shipment", Row{"name": "S", "invoice_id": f.invoice, "product_id": f.product, "qty": 1}).ID())
	}
	return f
}

func (f invoiceFixture) stock(t *testing.T, svc *Service) int64 {
	t.Helper()
	return mustGet(t, svc, "product", f.product).Int("stock")
}
