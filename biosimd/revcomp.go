// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package biosimd

// revComp8Table maps each ASCII base to its complement. Case is preserved so
// that soft-masked bases and the lowercase 'nnnn' mate spacer survive a
// round trip; anything that is not a nucleotide becomes 'N'.
var revComp8Table = func() (t [256]byte) {
	for i := range t {
		t[i] = 'N'
	}
	for _, p := range []string{"AT", "CG", "GC", "TA", "NN", "at", "cg", "gc", "ta", "nn"} {
		t[p[0]] = p[1]
	}
	return
}()

// ReverseComp8Inplace reverse-complements ascii8[], assuming that it's using
// ASCII encoding. It maps 'A' to 'T', 'c' to 'g', etc., keeps 'N'/'n', and
// maps everything else to 'N'.
func ReverseComp8Inplace(ascii8 []byte) {
	nByte := len(ascii8)
	nByteDiv2 := nByte >> 1
	for idx, invIdx := 0, nByte-1; idx != nByteDiv2; idx, invIdx = idx+1, invIdx-1 {
		ascii8[idx], ascii8[invIdx] = revComp8Table[ascii8[invIdx]], revComp8Table[ascii8[idx]]
	}
	if nByte&1 == 1 {
		ascii8[nByteDiv2] = revComp8Table[ascii8[nByteDiv2]]
	}
}

// ReverseComp8 writes the reverse-complement of src[] to dst[].
//
// It panics if len(dst) != len(src).
func ReverseComp8(dst, src []byte) {
	nByte := len(src)
	if len(dst) != nByte {
		panic("ReverseComp8 requires len(dst) == len(src).")
	}
	for idx, invIdx := 0, nByte-1; idx != nByte; idx, invIdx = idx+1, invIdx-1 {
		dst[idx] = revComp8Table[src[invIdx]]
	}
}

// ReverseComp8String returns the reverse-complement of s.
func ReverseComp8String(s string) string {
	b := []byte(s)
	ReverseComp8Inplace(b)
	return string(b)
}

// Reverse8Inplace reverses the byte order of main[]. Quality strings of
// reverse-complemented reads are reversed with it.
func Reverse8Inplace(main []byte) {
	for i, j := 0, len(main)-1; i < j; i, j = i+1, j-1 {
		main[i], main[j] = main[j], main[i]
	}
}
