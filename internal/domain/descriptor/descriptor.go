// Package descriptor defines the shape snapshot a host serves on discovery.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownKind     = errors.New("descriptor: unknown kind")
	ErrEmptyName       = errors.New("descriptor: empty name")
	ErrNestedNamespace = errors.New("descriptor: namespace inside namespace")
)

type Kind string

const (
	KindFunction  Kind = "function"
	KindEvents    Kind = "events"
	KindNamespace Kind = "namespace"
)

// Descriptor is one variant record. Values is only set for namespaces and
// only holds function and events records.
type Descriptor struct {
	Kind   Kind         `json:"kind"`
	Name   string       `json:"name"`
	Values []Descriptor `json:"values,omitempty"`
}

// List is order-irrelevant.
type List []Descriptor

func Function(name string) Descriptor { return Descriptor{Kind: KindFunction, Name: name} }

func Events(name string) Descriptor { return Descriptor{Kind: KindEvents, Name: name} }

func Namespace(name string, values ...Descriptor) Descriptor {
	return Descriptor{Kind: KindNamespace, Name: name, Values: values}
}

// Encode renders l as transport-safe text.
func Encode(l List) ([]byte, error) {
	if l == nil {
		l = List{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return data, nil
}

// Decode parses and validates text produced by Encode.
func Decode(data []byte) (List, error) {
	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l List) Validate() error {
	for i, d := range l {
		if err := d.validate(true); err != nil {
			return fmt.Errorf("descriptor[%d]: %w", i, err)
		}
	}
	return nil
}

func (d Descriptor) validate(top bool) error {
	if d.Name == "" {
		return ErrEmptyName
	}
	switch d.Kind {
	case KindFunction, KindEvents:
		return nil
	case KindNamespace:
		if !top {
			return ErrNestedNamespace
		}
		for i, v := range d.Values {
			if err := v.validate(false); err != nil {
				return fmt.Errorf("%s.values[%d]: %w", d.Name, i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%q: %w", d.Kind, ErrUnknownKind)
	}
}
