// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package biosimd provides table-driven implementations of the
// sequence-level byte operations used when orienting mate pairs: reverse
// complement of ASCII bases and reversal of quality strings.
package biosimd
