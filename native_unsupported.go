//go:build !(linux || darwin || windows || freebsd || openbsd || netbsd || dragonfly || illumos || solaris)

// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

// No kernel notification facility is reachable: every watcher polls.
const nativeSupport = false
