package storage

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Decode turns the field of a storage word described by typ, offset and size into
// a JSON friendly value.
func Decode(word []byte, typ string, offset, size int) any {
	word = common.LeftPadBytes(word, wordSize)
	if len(word) > wordSize {
		word = word[len(word)-wordSize:]
	}
	t := baseType(typ)

	if t == "string" || t == "bytes" {
		return decodeShortBytes(word, t == "string")
	}
	n, ok := valueSize(t)
	if !ok {
		return hexutil.Encode(word)
	}
	if size <= 0 || size > wordSize {
		size = n
	}
	end := wordSize - offset
	start := end - size
	if start < 0 || end > wordSize {
		return hexutil.Encode(word)
	}
	field := word[start:end]

	switch {
	case t == "address", strings.HasPrefix(t, "contract "):
		return common.BytesToAddress(field).Hex()
	case t == "bool":
		return new(big.Int).SetBytes(field).Sign() != 0
	case strings.HasPrefix(t, "uint"), strings.HasPrefix(t, "enum "):
		return new(big.Int).SetBytes(field)
	case strings.HasPrefix(t, "int"):
		v := new(big.Int).SetBytes(field)
		bits := uint(len(field) * 8)
		if v.Bit(int(bits)-1) == 1 {
			v.Sub(v, new(big.Int).Lsh(big.NewInt(1), bits))
		}
		return v
	case strings.HasPrefix(t, "bytes"):
		return hexutil.Encode(field)
	}
	return hexutil.Encode(word)
}

// decodeShortBytes handles the in-slot encoding of string and bytes values of up
// to 31 bytes. Longer values live elsewhere and are reported as the raw word.
func decodeShortBytes(word []byte, text bool) any {
	last := word[wordSize-1]
	if last&1 == 1 {
		return hexutil.Encode(word)
	}
	length := int(last / 2)
	if length > wordSize-1 {
		return hexutil.Encode(word)
	}
	data := word[:length]
	if text && utf8.Valid(data) {
		return string(data)
	}
	return hexutil.Encode(data)
}
