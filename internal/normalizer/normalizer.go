// Package normalizer maps the provider's generic JSON item list onto line items.
package normalizer

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rezonia/nfe-conferencia/internal/decimal"
	"github.com/rezonia/nfe-conferencia/internal/model"
)

// ErrNoItemList is returned when the payload carries none of the known item keys
var ErrNoItemList = errors.New("payload carries no item list")

// MappingFailedPrefix starts the description of the placeholder built from a mapping error
const MappingFailedPrefix = "Erro ao processar produtos: "

// Item list keys, in order of priority
var listKeys = []string{"produtos", "itens", "items", "det"}

// Field aliases used by the provider
var (
	codeKeys        = []string{"codigo", "cProd"}
	descriptionKeys = []string{"descricao", "xProd"}
	quantityKeys    = []string{"quantidade", "qCom"}
	unitKeys        = []string{"unidade", "uCom"}
)

// Extract reads the item list of a provider payload.
// An empty list yields no items and no error.
func Extract(payload model.ProviderPayload) ([]model.LineItem, error) {
	if payload.Kind != model.PayloadJSON || len(payload.Raw) == 0 {
		return nil, ErrNoItemList
	}

	root := gjson.ParseBytes(payload.Raw)
	if !root.IsObject() {
		return nil, ErrNoItemList
	}

	var list gjson.Result
	var listKey string
	for _, key := range listKeys {
		if v := root.Get(key); v.Exists() {
			list, listKey = v, key
			break
		}
	}
	if listKey == "" {
		return nil, ErrNoItemList
	}
	if list.Type == gjson.Null {
		return nil, nil
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("field %q is not a list", listKey)
	}

	elems := list.Array()
	items := make([]model.LineItem, 0, len(elems))
	for i, elem := range elems {
		item, err := convertItem(elem)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", listKey, i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Normalize never fails: a missing, malformed or empty item list becomes one placeholder item,
// and a mapping error becomes one placeholder carrying the error text.
func Normalize(payload model.ProviderPayload) []model.LineItem {
	items, err := Extract(payload)
	return Degrade(items, err)
}

// Degrade applies the placeholder policy to the outcome of an extraction
func Degrade(items []model.LineItem, err error) []model.LineItem {
	switch {
	case err != nil && !errors.Is(err, ErrNoItemList):
		return []model.LineItem{model.PlaceholderItem(MappingFailedPrefix + err.Error())}
	case len(items) == 0:
		return []model.LineItem{model.PlaceholderItem(model.NoInfoAvailable)}
	default:
		return items
	}
}

func convertItem(elem gjson.Result) (model.LineItem, error) {
	if !elem.IsObject() {
		return model.LineItem{}, fmt.Errorf("item is %s, not an object", elem.Type)
	}
	// NFe-shaped items nest the product under "prod"
	if prod := elem.Get("prod"); prod.IsObject() {
		elem = prod
	}

	quantity := decimal.One
	if v := first(elem, quantityKeys); v.Exists() {
		quantity = decimal.ParseQuantity(v.String())
	}

	unit := first(elem, unitKeys).String()
	if unit == "" {
		unit = model.DefaultUnit
	}

	return model.LineItem{
		Code:        first(elem, codeKeys).String(),
		Description: first(elem, descriptionKeys).String(),
		Quantity:    quantity,
		Unit:        unit,
	}, nil
}

func first(obj gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
