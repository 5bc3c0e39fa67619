package service

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/synth"
)

func TestLedger_CreateThenDeleteIsIdentity(t *testing.T) {
	svc := openShop(t)
	ctx := context.Background()
	cash := mustCreate(t, svc, "cash", Row{"name": "main", "total": 50.25}).ID()

	payment := mustCreate(t, svc, "payment", Row{"cash_id": cash, "amount": 10.1, "fee": 0.2})
	assert.Equal(t, 60.55, mustGet(t, svc, "cash", cash).Float("total"))

	require.NoError(t, table(t, svc, "payment").Delete(ctx, payment.ID(), nil, false))
	assert.Equal(t, 50.25, mustGet(t, svc, "cash", cash).Float("total"))

	deleted, err := table(t, svc, "payment").GetAll(ctx, synth.DeletedOnly, nil)
	require.NoError(t, err)
	assert.Len(t, deleted, 1, "payments are soft-deleted")
}

func TestLedger_UpdateMovesContributionToNewTarget(t *testing.T) {
	svc := openShop(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "cash", Row{"name": "a"}).ID()
	b := mustCreate(t, svc, "cash", Row{"name": "b"}).ID()
	c := mustCreate(t, svc, "cash", Row{"name": "c", "total": 3.0}).ID()

	p := mustCreate(t, svc, "payment", Row{"cash_id": a, "amount": 5.0})
	assert.Equal(t, 5.0, mustGet(t, svc, "cash", a).Float("total"))

	updated, err := table(t, svc, "payment").Update(ctx, Row{"id": p.ID(), "cash_id": b, "amount": 7.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, b, updated.Int("cash_id"))

	assert.Equal(t, 0.0, mustGet(t, svc, "cash", a).Float("total"))
	assert.Equal(t, 7.5, mustGet(t, svc, "cash", b).Float("total"))
	assert.Equal(t, 3.0, mustGet(t, svc, "cash", c).Float("total"), "no residual on a third row")
}

func TestLedger_UpdateSameTarget(t *testing.T) {
	svc := openShop(t)
	ctx := context.Background()
	cash := mustCreate(t, svc, "cash", Row{"name": "main"}).ID()
	p := mustCreate(t, svc, "payment", Row{"cash_id": cash, "amount": 5.0, "fee": 1.0})

	_, err := table(t, svc, "payment").Update(ctx, Row{"id": p.ID(), "amount": 8.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.0, mustGet(t, svc, "cash", cash).Float("total"))

	stored := mustGet(t, svc, "payment", p.ID())
	assert.Equal(t, 1.0, stored.Float("fee"), "absent columns keep their value")
	assert.Equal(t, p.Text("created_at"), stored.Text("created_at"))
}

func TestLedger_SnapshotRegister(t *testing.T) {
	svc := openShop(t)
	ctx := context.Background()
	product := mustCreate(t, svc, "product", Row{"name": "bolt"}).ID()

	mustCreate(t, svc, "price", Row{"product_id": product, "value": 3.5})
	second := mustCreate(t, svc, "price", Row{"product_id": product, "value": 4.0})
	assert.Equal(t, 4.0, mustGet(t, svc, "product", product).Float("last_price"))

	_, err := table(t, svc, "price").Update(ctx, Row{"id": second.ID(), "value": 4.25}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.25, mustGet(t, svc, "product", product).Float("last_price"))

	require.NoError(t, table(t, svc, "price").Delete(ctx, second.ID(), nil, false))
	assert.Equal(t, 4.25, mustGet(t, svc, "product", product).Float("last_price"), "snapshots are not reversed")
}

// recordingHandler keeps every record logged through it.
type recordingHandler struct {
	records *[]slog.Record
}

func (h recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestLedger_RelatedLoadMissIsTolerated(t *testing.T) {
	var records []slog.Record
	svc := openShop(t, WithLogger(slog.New(recordingHandler{records: &records})))

	p, err := table(t, svc, "payment").Create(context.Background(), Row{"cash_id": 99, "amount": 5.0}, nil)
	require.NoError(t, err)
	assert.NotZero(t, p.ID())

	var miss error
	for _, r := range records {
		if r.Message != "register skipped" {
			continue
		}
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "error" {
				miss, _ = a.Value.Any().(error)
			}
			return true
		})
	}
	require.Error(t, miss, "the skipped register is logged with its cause")
	assert.True(t, IsRelatedLoadMiss(miss))
	assert.ErrorIs(t, miss, sql.ErrNoRows)
	assert.Contains(t, miss.Error(), "related cash 99 not loaded")
}

func TestLedger_RelatedLoadMissIsLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := openShop(t, WithLogger(log))

	_, err := table(t, svc, "payment").Create(context.Background(), Row{"cash_id": 99, "amount": 5.0}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"register skipped\"")
}

func TestUpdate_DeletedRowIsRejected(t *testing.T) {
	svc := openShop(t)
	ctx := context.Background()
	cash := mustCreate(t, svc, "cash", Row{"name": "main"}).ID()
	payments := table(t, svc, "payment")

	p := mustCreate(t, svc, "payment", Row{"cash_id": cash, "amount": 10.0})
	require.NoError(t, payments.Delete(ctx, p.ID(), nil, false))
	assert.Equal(t, 0.0, mustGet(t, svc, "cash", cash).Float("total"))

	_, err := payments.Update(ctx, Row{"id": p.ID(), "amount": 50.0}, nil)
	require.Error(t, err)
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "update", te.Op)
	assert.Equal(t, "deleted", te.State)

	assert.Equal(t, 0.0, mustGet(t, svc, "cash", cash).Float("total"), "a deleted row no longer counts")
	assert.Equal(t, 10.0, mustGet(t, svc, "payment", p.ID()).Float("amount"))
}

func TestLedgerValue(t *testing.T) {
	inc := synth.LedgerStep{Op: schema.OpIncrement, Sources: []string{"a", "b"}, TargetType: schema.TypeReal}
	v, err := ledgerValue(inc, 0.1, Row{"a": 0.2, "b": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	back, err := ledgerValue(inc.Inverse(), v, Row{"a": 0.2, "b": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.1, back)

	intStep := synth.LedgerStep{Op: schema.OpDecrement, Sources: []string{"q"}, TargetType: schema.TypeInt}
	v, err = ledgerValue(intStep, int64(10), Row{"q": 2.6})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v, "int targets are rounded")

	snap := synth.LedgerStep{Op: schema.OpSnapshot, Sources: []string{"v"}, TargetType: schema.TypeReal}
	v, err = ledgerValue(snap, 1.0, Row{"v": int64(4)})
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	_, err = ledgerValue(inc, "abc", Row{"a": 1.0})
	assert.Error(t, err)
}
