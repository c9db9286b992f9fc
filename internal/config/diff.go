// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Change is one differing leaf between two Settings.
type Change struct {
	Path string `json:"path" yaml:"path"`
	Old  string `json:"old" yaml:"old"`
	New  string `json:"new" yaml:"new"`
}

// Diff compares two Settings and returns the differing leaves in field order.
// nil and empty collections compare equal. Secret values are reported masked.
func Diff(old, next Settings) []Change {
	r := &diffReporter{}
	cmp.Equal(old, next, cmpopts.EquateEmpty(), cmp.Reporter(r))
	return r.changes
}

// diffReporter collects leaf differences while cmp walks both values.
type diffReporter struct {
	path    cmp.Path
	changes []Change
}

func (r *diffReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *diffReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

func (r *diffReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	vx, vy := r.path.Last().Values()
	secret := r.secretPath()
	r.changes = append(r.changes, Change{
		Path: r.pathString(),
		Old:  formatDiffValue(vx, secret),
		New:  formatDiffValue(vy, secret),
	})
}

// pathString renders the current path with yaml field names, e.g.
// "channelLayers[default].hosts[0].port".
func (r *diffReporter) pathString() string {
	var b strings.Builder
	for i, step := range r.path {
		switch s := step.(type) {
		case cmp.StructField:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(yamlName(r.path[i-1].Type(), s))
		case cmp.MapIndex:
			fmt.Fprintf(&b, "[%v]", s.Key())
		case cmp.SliceIndex:
			if k := s.Key(); k >= 0 {
				fmt.Fprintf(&b, "[%d]", k)
			} else {
				kx, ky := s.SplitKeys()
				fmt.Fprintf(&b, "[%d->%d]", kx, ky)
			}
		}
	}
	return b.String()
}

func (r *diffReporter) secretPath() bool {
	for i, step := range r.path {
		sf, ok := step.(cmp.StructField)
		if !ok {
			continue
		}
		parent := r.path[i-1].Type()
		if parent.Kind() == reflect.Ptr {
			parent = parent.Elem()
		}
		if f, ok := parent.FieldByName(sf.Name()); ok && isMaskedField(f) {
			return true
		}
	}
	return false
}

func yamlName(parent reflect.Type, sf cmp.StructField) string {
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	f, ok := parent.FieldByName(sf.Name())
	if !ok {
		return sf.Name()
	}
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "" {
		return sf.Name()
	}
	return name
}

func formatDiffValue(v reflect.Value, secret bool) string {
	if !v.IsValid() {
		return "<none>"
	}
	if secret {
		if v.Kind() == reflect.String && v.String() == "" {
			return ""
		}
		return Masked
	}
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "<nil>"
		}
		v = v.Elem()
	}
	return fmt.Sprintf("%v", v.Interface())
}
