// Package storage computes the URIs the execution core hands to workers.
// Physical drivers live outside the core; the only discipline here is that
// a slot URI is stable per (table_id, table_data_version_id).
package storage

import (
	"fmt"
	"strings"
)

// Location pairs a URI with the env-prefix carrying the credentials the
// worker needs to reach it.
type Location struct {
	URI       string  `yaml:"uri" json:"uri"`
	EnvPrefix *string `yaml:"env_prefix" json:"env_prefix,omitempty"`
}

// Layout derives slot URIs under a storage root, e.g. file:///var/tabsdata
// or s3://bucket/prefix.
type Layout struct {
	Root      string
	EnvPrefix string
}

func NewLayout(root, envPrefix string) Layout {
	return Layout{Root: strings.TrimRight(root, "/"), EnvPrefix: envPrefix}
}

func (l Layout) prefix() *string {
	if l.EnvPrefix == "" {
		return nil
	}
	p := l.EnvPrefix
	return &p
}

// TableData is the slot of one table data version.
func (l Layout) TableData(collectionID, tableID, tableDataVersionID string) Location {
	return Location{
		URI:       fmt.Sprintf("%s/c/%s/t/%s/%s.t", l.Root, collectionID, tableID, tableDataVersionID),
		EnvPrefix: l.prefix(),
	}
}

// TablePartition is the slot of one partition of a partitioned data version.
func (l Layout) TablePartition(collectionID, tableID, tableDataVersionID, fileName string) Location {
	return Location{
		URI:       fmt.Sprintf("%s/c/%s/t/%s/%s.p/%s", l.Root, collectionID, tableID, tableDataVersionID, fileName),
		EnvPrefix: l.prefix(),
	}
}

// Bundle is the code archive of a function version.
func (l Layout) Bundle(collectionID, bundleID string) Location {
	return Location{
		URI:       fmt.Sprintf("%s/c/%s/f/%s.b", l.Root, collectionID, bundleID),
		EnvPrefix: l.prefix(),
	}
}

// FunctionData is the scratch prefix of one function version.
func (l Layout) FunctionData(collectionID, functionVersionID string) Location {
	return Location{
		URI:       fmt.Sprintf("%s/c/%s/f/%s.d", l.Root, collectionID, functionVersionID),
		EnvPrefix: l.prefix(),
	}
}
