// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletkeys

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcutil/hdkeychain"
)

// Path is a parsed BIP-32 derivation path, e.g. m/84'/0'/0'/0.
type Path []uint32

// ParsePath parses a path string of the form "m/84'/0'/0'/0", where a
// trailing "'" or "h" marks a hardened index.
func ParsePath(path string) (Path, error) {
	segments := strings.Split(path, "/")
	if len(segments) == 0 || segments[0] != "m" {
		return nil, fmt.Errorf("walletkeys: path %q must start with \"m\"", path)
	}

	var out Path
	for _, seg := range segments[1:] {
		hardened := strings.HasSuffix(seg, "'") || strings.HasSuffix(seg, "h") || strings.HasSuffix(seg, "H")
		if hardened {
			seg = seg[:len(seg)-1]
		}
		idx, err := strconv.ParseUint(seg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("walletkeys: invalid path segment %q: %w", seg, err)
		}
		if hardened {
			idx += hdkeychain.HardenedKeyStart
		}
		out = append(out, uint32(idx))
	}
	return out, nil
}

// String renders the path back to "m/..." form.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteString("/")
		if idx >= hdkeychain.HardenedKeyStart {
			fmt.Fprintf(&b, "%d'", idx-hdkeychain.HardenedKeyStart)
		} else {
			fmt.Fprintf(&b, "%d", idx)
		}
	}
	return b.String()
}
