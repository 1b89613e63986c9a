// Package adapter names the render adapter reported alongside frame timings.
package adapter

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

// Info describes a render adapter by PCI identity.
type Info struct {
	PCIID  string `json:"pci_id"`
	Vendor string `json:"vendor"`
	Name   string `json:"name"`
}

// Lookup resolves PCI vendor and product ids to names.
type Lookup interface {
	Vendor(vendorID string) (string, bool)
	Product(vendorID, deviceID string) (string, bool)
}

var (
	defaultOnce   sync.Once
	defaultLookup Lookup
)

// Describe resolves a "vendor:device" PCI id using the system PCI database.
func Describe(pciID string) Info {
	defaultOnce.Do(func() {
		db, err := pcidb.New()
		if err != nil || db == nil {
			defaultLookup = nopLookup{}
			return
		}
		defaultLookup = dbLookup{db: db}
	})
	return DescribeWith(defaultLookup, pciID)
}

// DescribeWith resolves pciID against lookup. Unknown ids fall back to the
// raw id as the name.
func DescribeWith(lookup Lookup, pciID string) Info {
	info := Info{PCIID: strings.TrimSpace(pciID)}
	vendorID, deviceID := split(info.PCIID)
	if vendorID == "" || deviceID == "" || lookup == nil {
		info.Name = info.PCIID
		return info
	}

	if vendor, ok := lookup.Vendor(vendorID); ok {
		info.Vendor = vendor
	}
	if product, ok := lookup.Product(vendorID, deviceID); ok {
		info.Name = product
	} else {
		info.Name = info.PCIID
	}
	return info
}

type dbLookup struct {
	db *pcidb.PCIDB
}

func (l dbLookup) Vendor(vendorID string) (string, bool) {
	vendor, ok := l.db.Vendors[vendorID]
	if !ok || vendor == nil || vendor.Name == "" {
		return "", false
	}
	return vendor.Name, true
}

func (l dbLookup) Product(vendorID, deviceID string) (string, bool) {
	product, ok := l.db.Products[vendorID+deviceID]
	if !ok || product == nil || product.Name == "" {
		return "", false
	}
	return product.Name, true
}

type nopLookup struct{}

func (nopLookup) Vendor(string) (string, bool)          { return "", false }
func (nopLookup) Product(string, string) (string, bool) { return "", false }

func split(pciID string) (vendorID, deviceID string) {
	parts := strings.SplitN(pciID, ":", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return normalize(parts[0]), normalize(parts[1])
}

func normalize(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "0x")
	value = strings.TrimPrefix(value, "0X")
	if value == "" {
		return ""
	}
	value = strings.ToLower(value)
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}
