package selector

import (
	"reflect"

	"github.com/goforj/hybridcache/cachecore"
)

// Classify maps a Go value to the data type used for scoring.
// Strings, numbers, booleans and nil are scalars; byte slices are binary.
func Classify(v any) cachecore.DataType {
	if v == nil {
		return cachecore.DataScalar
	}
	if _, ok := v.([]byte); ok {
		return cachecore.DataBinary
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return cachecore.DataScalar
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		return cachecore.DataObject
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return cachecore.DataBinary
		}
		return cachecore.DataArray
	}
	return cachecore.DataScalar
}
