package engine

import _ "embed"

// qjsWasm is the QuickJS shim compiled to wasm32-wasi, fetched by
// `go run ./internal/tools/download`. The committed placeholder is an empty
// wasm module; New fails ABI validation against it, so integration tests
// skip until the real artifact is in place.
//
//go:embed qjs.wasm
var qjsWasm []byte
