//go:build !nojsonsimd

package main

import "github.com/bytedance/sonic"

// Protocol frames go through sonic's std-compatible config; build with
// -tags nojsonsimd on platforms sonic does not cover.
var fastJSON = sonic.ConfigStd

func fastJSONMarshal(v interface{}) ([]byte, error) {
	return fastJSON.Marshal(v)
}

func fastJSONUnmarshal(data []byte, v interface{}) error {
	return fastJSON.Unmarshal(data, v)
}
