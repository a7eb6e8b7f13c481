package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type ItemKind string

const (
	KindProduct   ItemKind = "product"
	KindInventory ItemKind = "inventory"
)

func (k ItemKind) Valid() bool {
	return k == KindProduct || k == KindInventory
}

// ParseItemKind accepts the kind names used by clients, including "material" for inventory.
func ParseItemKind(raw string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "product", "products":
		return KindProduct, nil
	case "inventory", "material", "materials":
		return KindInventory, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", raw)
	}
}

// ItemRef identifies either a product or an inventory material.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   int64    `json:"id"`
}

func ProductRef(id int64) ItemRef {
	return ItemRef{Kind: KindProduct, ID: id}
}

func InventoryRef(id int64) ItemRef {
	return ItemRef{Kind: KindInventory, ID: id}
}

func (r ItemRef) Valid() bool {
	return r.Kind.Valid() && r.ID > 0
}

func (r ItemRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}
