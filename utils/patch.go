package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// MergePtrDTO copies every non-nil pointer field of src onto the field with the
// same name in dst. A dst field may be the pointed-to type or the same pointer
// type; in the latter case a fresh copy of the value is stored.
// Both arguments must be pointers to structs.
func MergePtrDTO(dst any, src any) {
	d, ok := structElem(dst)
	if !ok {
		return
	}
	s, ok := structElem(src)
	if !ok {
		return
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		target := d.FieldByName(sf.Name)
		if !target.IsValid() || !target.CanSet() {
			continue
		}
		switch target.Type() {
		case fv.Type().Elem():
			target.Set(fv.Elem())
		case fv.Type():
			cp := reflect.New(fv.Type().Elem())
			cp.Elem().Set(fv.Elem())
			target.Set(cp)
		}
	}
}

func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}
