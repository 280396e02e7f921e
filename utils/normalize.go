package utils

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// moneyTag marks decimal fields holding currency amounts. Only those are
// rounded to cents; other decimals keep the precision they were sent with.
const moneyTag = "money"

func isMoney(f reflect.StructField) bool {
	return f.Tag.Get("normalize") == moneyTag
}

// NormalizePtrDTO trims *string fields and rounds money-tagged *decimal.Decimal fields on a pointer-to-struct DTO.
// Only non-nil pointer fields are touched; nils stay nil.
func NormalizePtrDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		normalizeValue(f.Elem(), isMoney(s.Type().Field(i)))
	}
}

// NormalizeDTO trims string fields and rounds money-tagged decimal fields on a pointer-to-struct DTO,
// including fields behind non-nil pointers. Nested structs other than decimals are left alone.
func NormalizeDTO(dto any) {
	s, ok := structElem(dto)
	if !ok {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		normalizeValue(f, isMoney(s.Type().Field(i)))
	}
}

func normalizeValue(v reflect.Value, money bool) {
	if !v.CanSet() {
		return
	}
	switch {
	case v.Kind() == reflect.String:
		v.SetString(strings.TrimSpace(v.String()))
	case v.Type() == decimalType && money:
		v.Set(reflect.ValueOf(Round2(v.Interface().(decimal.Decimal))))
	case v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.String:
		for i := 0; i < v.Len(); i++ {
			normalizeValue(v.Index(i), false)
		}
	}
}

func structElem(dto any) (reflect.Value, bool) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, false
	}
	s := v.Elem()
	return s, s.Kind() == reflect.Struct
}
