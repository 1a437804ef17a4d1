package registry

import (
	"fmt"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
)

// value returns the addressable struct behind entity, which must be a non-nil
// pointer to the mapping's model.
func (m Mapping) value(entity any) (reflect.Value, error) {
	if m.Model == nil || m.goIndex == nil {
		return reflect.Value{}, goerrors.New(fmt.Sprintf("entity type %q has no model", m.Type), goerrors.CategoryBadInput)
	}
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != m.Model {
		return reflect.Value{}, goerrors.New(fmt.Sprintf("expected *%s, got %T", m.Model, entity), goerrors.CategoryBadInput)
	}
	return rv.Elem(), nil
}

// FieldValue reads a mapped field from entity. Nil pointers are reported as nil.
func (m Mapping) FieldValue(entity any, field string) (any, error) {
	rv, err := m.value(entity)
	if err != nil {
		return nil, err
	}
	name, ok := m.FieldName(field)
	if !ok {
		return nil, goerrors.New(fmt.Sprintf("entity type %q has no field %q", m.Type, field), goerrors.CategoryBadInput)
	}
	fv := rv.FieldByIndex(m.goIndex[name])
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	return fv.Interface(), nil
}

// IDValue returns the identity of entity.
func (m Mapping) IDValue(entity any) (any, error) {
	return m.FieldValue(entity, m.IDField)
}

// HasID reports whether entity carries a non-zero identity.
func (m Mapping) HasID(entity any) (bool, error) {
	rv, err := m.value(entity)
	if err != nil {
		return false, err
	}
	return !rv.FieldByIndex(m.goIndex[m.IDField]).IsZero(), nil
}

// ResetID zeroes the identity of entity. It is used to undo identities handed
// out by a rolled back insert.
func (m Mapping) ResetID(entity any) error {
	rv, err := m.value(entity)
	if err != nil {
		return err
	}
	fv := rv.FieldByIndex(m.goIndex[m.IDField])
	fv.Set(reflect.Zero(fv.Type()))
	return nil
}

// New allocates a zero entity of the mapping's model.
func (m Mapping) New() (any, error) {
	if m.Model == nil {
		return nil, goerrors.New(fmt.Sprintf("entity type %q has no model", m.Type), goerrors.CategoryBadInput)
	}
	return reflect.New(m.Model).Interface(), nil
}
