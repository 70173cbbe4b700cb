// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations lists the activations supported by autograd, and includes a generic Apply
// method to apply an activation by its type.
//
// There is also FromName to convert an activation name (string) to its type, used by command-line
// flags and configuration.
package activations

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gograd/pkg/core/autograd"
	"github.com/pkg/errors"
)

// Type is an enum for the supported activation functions.
//
// It is converted to lower-case strings (e.g.: TypeGelu -> "gelu"), and can be converted
// from string by using FromName or TypeString.
type Type int

const (
	TypeNone Type = iota
	TypeSwish

	// TypeSilu is an alias to TypeSwish
	TypeSilu

	TypeGelu
)

var typeNames = map[Type]string{
	TypeNone:  "none",
	TypeSwish: "swish",
	TypeSilu:  "silu",
	TypeGelu:  "gelu",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if name, found := typeNames[t]; found {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// TypeValues returns all the valid values of Type.
func TypeValues() []Type {
	return []Type{TypeNone, TypeSwish, TypeSilu, TypeGelu}
}

// TypeString converts a name (case-insensitive) to the corresponding Type.
func TypeString(name string) (Type, error) {
	name = strings.ToLower(name)
	for t, tName := range typeNames {
		if tName == name {
			return t, nil
		}
	}
	return TypeNone, errors.Errorf("%q is not a valid activation", name)
}

// Apply the given activation type.
// The TypeNone activation is a no-op.
//
// See TypeValues for valid values.
func Apply(activation Type, x autograd.Node) autograd.Node {
	switch activation {
	case TypeNone:
		return x
	case TypeSwish, TypeSilu:
		return autograd.Silu(x)
	case TypeGelu:
		return autograd.Gelu(x)
	default:
		exceptions.Panicf("Apply got invalid activation value %q: options are %v", activation, TypeValues())
	}
	return autograd.Node{}
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// And empty string is converted to TypeNone.
func FromName(activationName string) Type {
	if activationName == "" {
		return TypeNone
	}
	activation, err := TypeString(activationName)
	if err != nil {
		exceptions.Panicf("invalid activation name %q: options are %v", activationName, TypeValues())
	}
	return activation
}

// Names returns the sorted names of all activations, for help messages.
func Names() []string {
	names := make([]string, 0, len(typeNames))
	for _, name := range typeNames {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
