/*
Copyright the ledger-driver-go authors. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License"). You may not use this file except in compliance with
the License. A copy of the License is located at

http://www.apache.org/licenses/LICENSE-2.0

or in the "license" file accompanying this file. This file is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR
CONDITIONS OF ANY KIND, either express or implied. See the License for the specific language governing permissions
and limitations under the License.
*/

package ledgerdriver

import (
	"crypto/sha256"

	"github.com/amzn/ion-go/ion"
	ionhash "github.com/amzn/ion-hash-go"
)

const hashSize = sha256.Size

// ledgerHash is one node of the commit digest computation. A transaction's
// digest starts as the hash of its transaction id and is folded with the
// hash of every executed statement via dot.
type ledgerHash struct {
	hash []byte
}

// hashValue computes the Ion hash of the binary Ion encoding of value.
// Statement text and transaction ids are hashed as Ion strings.
func hashValue(value interface{}) (*ledgerHash, error) {
	ionBinary, err := ion.MarshalBinary(value)
	if err != nil {
		return nil, err
	}
	hashReader, err := ionhash.NewHashReader(ion.NewReaderBytes(ionBinary), ionhash.NewCryptoHasherProvider(ionhash.SHA256))
	if err != nil {
		return nil, err
	}
	for hashReader.Next() {
		// Step over the value; the reader accumulates the hash.
	}
	sum, err := hashReader.Sum(nil)
	if err != nil {
		return nil, err
	}
	return &ledgerHash{sum}, nil
}

// dot combines two digests into one: SHA-256 over their concatenation in
// canonical order. The ordering makes dot commutative, which the ledger
// relies on when it recomputes the digest server-side.
func (h *ledgerHash) dot(other *ledgerHash) *ledgerHash {
	sum := sha256.Sum256(concatOrdered(h.hash, other.hash))
	return &ledgerHash{sum[:]}
}

func concatOrdered(h1, h2 []byte) []byte {
	if len(h1) == 0 {
		return h2
	}
	if len(h2) == 0 {
		return h1
	}
	joined := make([]byte, 0, len(h1)+len(h2))
	if compareHashes(h1, h2) < 0 {
		joined = append(joined, h1...)
		joined = append(joined, h2...)
	} else {
		joined = append(joined, h2...)
		joined = append(joined, h1...)
	}
	return joined
}

// compareHashes orders two digests the way the ledger does: walk from the
// last byte toward the first, comparing each byte as a signed value. This
// must match the server's comparator exactly.
func compareHashes(h1, h2 []byte) int {
	if len(h1) != hashSize || len(h2) != hashSize {
		panic("comparison requires two SHA-256 digests")
	}
	for i := hashSize - 1; i >= 0; i-- {
		difference := int(int8(h1[i])) - int(int8(h2[i]))
		if difference != 0 {
			return difference
		}
	}
	return 0
}
