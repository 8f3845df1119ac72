// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package validation provides struct validation using go-playground/validator v10.
//
// It wraps a thread-safe singleton validator and turns validator field errors
// into messages that name the offending configuration key, so that a bad
// procwarden.yaml is reported as
//
//	services[1].ready.type must be one of: tcp http log delay
//
// rather than with Go struct field names.
//
// # Tag names
//
// Field paths come from the `koanf` struct tag, falling back to the Go field
// name.
//
// # Custom validators
//
//   - servicename: ^[A-Za-z0-9][A-Za-z0-9_.-]*$
//
// # Usage
//
//	type ServiceSpec struct {
//	    Name    string `koanf:"name" validate:"required,servicename,max=64"`
//	    Command string `koanf:"command" validate:"required"`
//	}
//
//	if errs := validation.ValidateStruct(&spec); errs != nil {
//	    for _, fe := range errs.Fields() {
//	        fmt.Println(fe.Path(), fe.Tag())
//	    }
//	}
//
// # Thread Safety
//
// GetValidator and ValidateStruct are safe for concurrent use. The validator
// caches struct metadata after the first call for each type.
package validation
