//go:build !linux

// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import "github.com/agilira/go-errors"

func newInotifySource(path string) (ChangeSource, error) {
	return nil, errors.New(ErrCodeNativeUnavailable, "inotify is only available on linux").
		WithContext("path", path)
}
