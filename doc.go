// Package qjs embeds the QuickJS JavaScript engine, compiled to
// WebAssembly, behind a safe Go API. No cgo, no shared libraries: the engine
// runs on wazero inside the process.
//
// # Basic Usage
//
// A Context is an isolated interpreter with its own global object, heap and
// limits:
//
//	ctx, err := qjs.New(qjs.WithMaxMemory(16<<20), qjs.WithTimeout(time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	v, err := ctx.Eval("6 * 7", "answer.js")
//	// v.Int() == 42
//
// Values cross the boundary as detached snapshots (package value); only
// functions remain live references into the engine. Go functions become
// script-callable through Function or RegisterCallback:
//
//	ctx.RegisterCallback("add", 2, func(this value.Value, args []value.Value) (value.Value, error) {
//		return value.Int(args[0].Int() + args[1].Int()), nil
//	})
//	v, _ = ctx.Eval("add(40, 2)", "")
//
// # Errors
//
// Script exceptions surface as *ScriptError, tripped execution limits as
// *ResourceError, and lossy conversions as *value.ConversionError. The
// bridge never panics on script input and releases every engine handle it
// acquires, on success and error paths alike.
//
// See the [engine] and [value] packages for the lower layers.
package qjs
