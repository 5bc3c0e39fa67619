package migrate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/erpgen/internal/schema"
	"github.com/roach88/erpgen/internal/store"
	"github.com/roach88/erpgen/internal/testutil"
)

func mustParse(t *testing.T, src string) *schema.Model {
	t.Helper()
	m, err := schema.Parse("models.json", []byte(src))
	require.NoError(t, err)
	return m
}

func TestPlan_CashGainsNotes(t *testing.T) {
	prev := mustParse(t, testutil.PreviousShopSchema())
	next := mustParse(t, testutil.ShopSchema)

	plan := Plan(prev, next, schema.ChangeDirective{})

	require.Len(t, plan.Steps, 2)
	assert.Equal(t, Step{Kind: StepDrop, Entity: "cash", SQL: "DROP TABLE IF EXISTS cash;", Reason: ReasonColumnsChanged}, plan.Steps[0])
	assert.Equal(t, StepCreate, plan.Steps[1].Kind)
	assert.Equal(t, []string{"cash"}, plan.Reloads)
	assert.Empty(t, plan.External)
	assert.Empty(t, plan.Clears)
	assert.Empty(t, plan.Warnings)
	assert.False(t, plan.Empty())
	assert.Equal(t, "recreate cash; reload cash", plan.Summary())

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "cash_notes_plan", []byte(plan.SQL()))
}

func TestPlan_FirstRunCreatesEverything(t *testing.T) {
	next := mustParse(t, testutil.ShopSchema)

	plan := Plan(schema.NewModel(nil), next, schema.ChangeDirective{})

	assert.Equal(t, next.Names(), plan.Recreated())
	assert.Len(t, plan.Steps, 2*len(next.Entities))
	for _, s := range plan.Steps {
		assert.Equal(t, ReasonNew, s.Reason)
	}
	assert.Empty(t, plan.Reloads, "new entities have nothing to reload")
}

func TestPlan_NilPrevious(t *testing.T) {
	next := mustParse(t, testutil.ShopSchema)
	plan := Plan(nil, next, schema.ChangeDirective{})
	assert.Len(t, plan.Recreated(), len(next.Entities))
}

func TestPlan_UnchangedIsEmpty(t *testing.T) {
	m := mustParse(t, testutil.ShopSchema)
	plan := Plan(m, m, schema.ChangeDirective{})
	assert.True(t, plan.Empty())
	assert.Equal(t, "", plan.SQL())
	assert.Equal(t, "no changes", plan.Summary())
}

func TestPlan_RemovedEntityIsDropped(t *testing.T) {
	prev := mustParse(t, testutil.ShopSchema)
	next := mustParse(t, strings.Replace(testutil.ShopSchema, `"price": {
      "columns"`, `"quote": {
      "columns"`, 1))

	plan := Plan(prev, next, schema.ChangeDirective{})

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, Step{Kind: StepDrop, Entity: "price", SQL: "DROP TABLE IF EXISTS price;", Reason: ReasonRemoved}, plan.Steps[0])
	assert.Equal(t, "quote", plan.Steps[1].Entity)
	assert.Equal(t, ReasonNew, plan.Steps[1].Reason)
	assert.Empty(t, plan.Reloads)
}

func TestPlan_ForceClearIsNotReloaded(t *testing.T) {
	m := mustParse(t, testutil.ShopSchema)
	plan := Plan(m, m, schema.ChangeDirective{TablesForClearing: []string{"payment"}})

	assert.Equal(t, []string{"payment"}, plan.Recreated())
	assert.Equal(t, ReasonForceClear, plan.Steps[0].Reason)
	assert.Empty(t, plan.Reloads)
}

func TestPlan_TypeOnlyChangeIsWarned(t *testing.T) {
	prev := mustParse(t, testutil.ShopSchema)
	next := mustParse(t, strings.Replace(testutil.ShopSchema, `"stock": {"def": 0}`, `"stock": {"def": 0.0}`, 1))

	plan := Plan(prev, next, schema.ChangeDirective{})

	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"product.stock: type changed int -> real; table is not recreated"}, plan.Warnings)
}

func TestPlan_ExternalAndClears(t *testing.T) {
	m := mustParse(t, testutil.ShopSchema)
	plan := Plan(m, m, schema.ChangeDirective{
		Update:            []string{"price", "cash"},
		FieldsForClearing: map[string][]string{"product": {"stock", "last_price"}, "cash": {"notes"}},
	})

	assert.Empty(t, plan.Steps)
	assert.Equal(t, []string{"cash", "price"}, plan.External, "model order")
	assert.Equal(t, []FieldClear{
		{Entity: "cash", Field: "notes", Default: ""},
		{Entity: "product", Field: "stock", Default: int64(0)},
		{Entity: "product", Field: "last_price", Default: float64(0)},
	}, plan.Clears)
	assert.False(t, plan.Empty())
}

func TestCreateTableSQL(t *testing.T) {
	m := mustParse(t, testutil.ShopSchema)
	product, _ := m.Entity("product")

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS product (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL DEFAULT '',
    stock INT NOT NULL DEFAULT 0,
    last_price REAL NOT NULL DEFAULT 0.0,
    is_active BOOL NOT NULL DEFAULT 1
);`, CreateTableSQL(product))
	assert.Equal(t, "INSERT INTO product (id, name, stock, last_price, is_active) VALUES (?, ?, ?, ?, ?)", InsertSQL(product))
}

func TestPlan_Idempotent(t *testing.T) {
	prev := mustParse(t, testutil.PreviousShopSchema())
	next := mustParse(t, testutil.ShopSchema)
	ctx := context.Background()

	once := openLive(t, prev)
	applyDDL(t, once, Plan(prev, next, schema.ChangeDirective{}))

	twice := openLive(t, prev)
	plan := Plan(prev, next, schema.ChangeDirective{})
	applyDDL(t, twice, plan)
	applyDDL(t, twice, plan)

	assert.Equal(t, masterSQL(ctx, t, once), masterSQL(ctx, t, twice))
}

// openLive returns a database holding the tables of m.
func openLive(t *testing.T, m *schema.Model) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "live.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	applyDDL(t, s, Plan(nil, m, schema.ChangeDirective{}))
	return s
}

func applyDDL(t *testing.T, s *store.Store, plan *MigrationPlan) {
	t.Helper()
	for _, step := range plan.Steps {
		_, err := s.DB().Exec(step.SQL)
		require.NoError(t, err, step.SQL)
	}
}

func masterSQL(ctx context.Context, t *testing.T, s *store.Store) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.DB().SelectContext(ctx, &out,
		`SELECT type || ':' || name || ':' || IFNULL(sql, '') FROM sqlite_master ORDER BY type, name`))
	return out
}
