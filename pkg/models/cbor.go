package models

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	// Canonical mode sorts map keys, so equal values always encode to equal
	// bytes. Query hashing depends on that.
	cborEnc, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType: mapStringAnyType,
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func getCborEncoder() cbor.EncMode {
	return cborEnc
}

func getCborDecoder() cbor.DecMode {
	return cborDec
}

// Marshal encodes v with the canonical CBOR encoder shared by queue payloads,
// cached values and query hashing.
func Marshal(v any) ([]byte, error) {
	return getCborEncoder().Marshal(v)
}

// Unmarshal decodes CBOR produced by Marshal.
func Unmarshal(data []byte, v any) error {
	return getCborDecoder().Unmarshal(data, v)
}
