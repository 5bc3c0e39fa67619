package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ShopSchema is a small but complete schema exercising every annotation:
// foreign keys, find with parent and child joins, between and between_up,
// sums, accumulating and snapshot registers, rz registers, complex registers
// and related collections of a document.
const ShopSchema = `{
  "documents": ["invoice", "shipment"],
  "line_items": ["item_to_invoice"],
  "entities": {
    "cash": {
      "columns": ["id", "name", "total", "notes", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": "", "hum": "Name", "form": true},
        "total": {"def": 0.0, "hum": "Total"},
        "notes": {"def": "", "hum": "Notes", "form": true},
        "is_active": {"def": true}
      },
      "rights": "CASH",
      "message": "Cash desks and their running balance."
    },
    "contragent": {
      "columns": ["id", "name", "search", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": ""},
        "search": {"def": ""},
        "is_active": {"def": true}
      },
      "rights": "CONTRAGENT",
      "find": [{"contragent": ["search"], "contact": ["search"]}]
    },
    "contact": {
      "columns": ["id", "name", "contragent_id", "search", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": ""},
        "contragent_id": {"def": 0},
        "search": {"def": ""},
        "is_active": {"def": true}
      },
      "rights": "CONTRAGENT",
      "find": [{"contact": ["name"], "contragent": ["-search"]}]
    },
    "product": {
      "columns": ["id", "name", "stock", "last_price", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": ""},
        "stock": {"def": 0},
        "last_price": {"def": 0.0},
        "is_active": {"def": true}
      },
      "rights": "PRODUCT"
    },
    "invoice": {
      "columns": ["id", "name", "contragent_id", "cash_id", "total", "created_at", "is_realized", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": ""},
        "contragent_id": {"def": 0},
        "cash_id": {"def": 0},
        "total": {"def": 0.0},
        "created_at": {"def": ""},
        "is_realized": {"def": false},
        "is_active": {"def": true}
      },
      "rights": "DOCS",
      "between": ["created_at"],
      "related": [
        {"table": "item_to_invoice", "filter": "invoice_id", "filter_value": "id"},
        {"table": "shipment", "filter": "invoice_id", "filter_value": "id"}
      ]
    },
    "item_to_invoice": {
      "columns": ["id", "invoice_id", "product_id", "qty", "price", "is_active"],
      "model": {
        "id": {"def": 0},
        "invoice_id": {"def": 0},
        "product_id": {"def": 0},
        "qty": {"def": 0},
        "price": {"def": 0.0},
        "is_active": {"def": true}
      },
      "rights": "DOCS",
      "between_up": ["invoice.created_at"],
      "rz_register": [{"reg_field": "product.stock", "func": "-", "val_field": ["qty"]}],
      "complex_register": [{"name": "reserve"}]
    },
    "shipment": {
      "columns": ["id", "name", "invoice_id", "product_id", "qty", "is_realized", "is_active"],
      "model": {
        "id": {"def": 0},
        "name": {"def": ""},
        "invoice_id": {"def": 0},
        "product_id": {"def": 0},
        "qty": {"def": 0},
        "is_realized": {"def": false},
        "is_active": {"def": true}
      },
      "rights": "DOCS",
      "rz_register": [{"reg_field": "product.stock", "func": "-", "val_field": ["qty"]}],
      "complex_register": [{"name": "reserve"}]
    },
    "payment": {
      "columns": ["id", "cash_id", "amount", "fee", "created_at", "is_active"],
      "model": {
        "id": {"def": 0},
        "cash_id": {"def": 0},
        "amount": {"def": 0.0},
        "fee": {"def": 0.0},
        "created_at": {"def": ""},
        "is_active": {"def": true}
      },
      "rights": "CASH",
      "between": ["created_at"],
      "sum": ["amount"],
      "register": [{"reg_field": "cash.total", "func": "+", "val_field": ["amount", "fee"]}]
    },
    "price": {
      "columns": ["id", "product_id", "value", "is_active"],
      "model": {
        "id": {"def": 0},
        "product_id": {"def": 0},
        "value": {"def": 0.0},
        "is_active": {"def": true}
      },
      "rights": "PRODUCT",
      "register": [{"reg_field": "product.last_price", "func": "", "val_field": ["value"]}]
    }
  }
}
`

// PreviousShopSchema is ShopSchema before cash gained its notes column.
func PreviousShopSchema() string {
	s := strings.Replace(ShopSchema, `["id", "name", "total", "notes", "is_active"]`, `["id", "name", "total", "is_active"]`, 1)
	return strings.Replace(s, `        "notes": {"def": "", "hum": "Notes", "form": true},
`, "", 1)
}

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteShopSchemas writes the previous and current shop schemas into dir and
// returns their paths.
func WriteShopSchemas(t *testing.T, dir string) (previous, current string) {
	t.Helper()
	previous = WriteFile(t, dir, "models_bk.json", PreviousShopSchema())
	current = WriteFile(t, dir, "models.json", ShopSchema)
	return previous, current
}
