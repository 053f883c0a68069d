package engine

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Tag classifies an engine value handle. The wasm shim computes the
// classification (qjs_tag), folding QuickJS tag inspection and class checks
// (array, date, array buffer) into one call.
type Tag int32

const (
	TagUndefined Tag = iota
	TagNull
	TagBool
	TagInt
	TagFloat
	TagString
	TagArray
	TagObject
	TagFunction
	TagDate
	TagBigInt
	TagBytes
	TagException
	TagUnknown
)

// InvokeFunc dispatches a script-initiated call on a registered host
// function. slot identifies the registration; this and args are engine value
// handles owned by the engine for the duration of the call (the dispatcher
// must dup anything it retains). The returned handle is given to the engine;
// to signal a thrown exception the dispatcher installs a pending exception
// and returns the exception-tagged handle produced by Throw or ThrowError.
type InvokeFunc func(ctx uint32, slot int32, this uint64, args []uint64) uint64

// Exported function names of the QuickJS shim build.
//
// The artifact is a wasm32-wasi reactor: the host controls execution and the
// module exports value-granular entry points instead of blocking in _start.
// JSValue crosses the boundary as i64; runtime/context pointers as i32.
const (
	expRuntimeNew       = "qjs_runtime_new"
	expRuntimeFree      = "qjs_runtime_free"
	expContextNew       = "qjs_context_new"
	expContextFree      = "qjs_context_free"
	expSetMemoryLimit   = "qjs_set_memory_limit"
	expSetMaxStackSize  = "qjs_set_max_stack_size"
	expEnableInterrupt  = "qjs_enable_interrupt"
	expMalloc           = "malloc"
	expFree             = "free"
	expEval             = "qjs_eval"
	expCall             = "qjs_call"
	expDup              = "qjs_dup"
	expFreeValue        = "qjs_free_value"
	expTag              = "qjs_tag"
	expUndefined        = "qjs_undefined"
	expNull             = "qjs_null"
	expNewBool          = "qjs_new_bool"
	expNewInt64         = "qjs_new_int64"
	expNewFloat64       = "qjs_new_float64"
	expNewString        = "qjs_new_string"
	expNewArray         = "qjs_new_array"
	expNewObject        = "qjs_new_object"
	expNewDate          = "qjs_new_date"
	expNewBigInt        = "qjs_new_bigint"
	expNewArrayBuffer   = "qjs_new_array_buffer"
	expNewFunction      = "qjs_new_function"
	expFunctionSlot     = "qjs_function_slot"
	expToBool           = "qjs_to_bool"
	expToInt64          = "qjs_to_int64"
	expToFloat64        = "qjs_to_float64"
	expToCString        = "qjs_to_cstring"
	expFreeCString      = "qjs_free_cstring"
	expGetArrayBuffer   = "qjs_get_array_buffer"
	expDateMillis       = "qjs_date_millis"
	expArrayLength      = "qjs_array_length"
	expGetPropertyStr   = "qjs_get_property_str"
	expSetPropertyStr   = "qjs_set_property_str"
	expGetPropertyU32   = "qjs_get_property_u32"
	expDefinePropU32    = "qjs_define_property_u32"
	expPropertyNames    = "qjs_property_names"
	expGlobalObject     = "qjs_global_object"
	expHasException     = "qjs_has_exception"
	expGetException     = "qjs_get_exception"
	expThrow            = "qjs_throw"
	expThrowError       = "qjs_throw_error"
	expExecutePending   = "qjs_execute_pending_job"
	expSetModuleLoader  = "qjs_set_module_loader"
	expEnableRejections = "qjs_enable_rejection_tracker"
)

// Host import names the shim expects on module "env".
const (
	impHostCall      = "host_call"
	impHostInterrupt = "host_interrupt"
	impHostLoad      = "host_load_module"
	impHostRejection = "host_promise_rejection"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f64 = api.ValueTypeF64
)

type abiSig struct {
	params  []api.ValueType
	results []api.ValueType
}

// requiredExports is checked at compile time so a stale or truncated
// artifact fails fast instead of trapping mid-eval.
var requiredExports = map[string]abiSig{
	expRuntimeNew:       {nil, []api.ValueType{i32}},
	expRuntimeFree:      {[]api.ValueType{i32}, nil},
	expContextNew:       {[]api.ValueType{i32}, []api.ValueType{i32}},
	expContextFree:      {[]api.ValueType{i32}, nil},
	expSetMemoryLimit:   {[]api.ValueType{i32, i64}, nil},
	expSetMaxStackSize:  {[]api.ValueType{i32, i64}, nil},
	expEnableInterrupt:  {[]api.ValueType{i32}, nil},
	expMalloc:           {[]api.ValueType{i32}, []api.ValueType{i32}},
	expFree:             {[]api.ValueType{i32}, nil},
	expEval:             {[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i64}},
	expCall:             {[]api.ValueType{i32, i64, i64, i32, i32}, []api.ValueType{i64}},
	expDup:              {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	expFreeValue:        {[]api.ValueType{i32, i64}, nil},
	expTag:              {[]api.ValueType{i32, i64}, []api.ValueType{i32}},
	expUndefined:        {nil, []api.ValueType{i64}},
	expNull:             {nil, []api.ValueType{i64}},
	expNewBool:          {[]api.ValueType{i32, i32}, []api.ValueType{i64}},
	expNewInt64:         {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	expNewFloat64:       {[]api.ValueType{i32, f64}, []api.ValueType{i64}},
	expNewString:        {[]api.ValueType{i32, i32, i32}, []api.ValueType{i64}},
	expNewArray:         {[]api.ValueType{i32}, []api.ValueType{i64}},
	expNewObject:        {[]api.ValueType{i32}, []api.ValueType{i64}},
	expNewDate:          {[]api.ValueType{i32, f64}, []api.ValueType{i64}},
	expNewBigInt:        {[]api.ValueType{i32, i32, i32}, []api.ValueType{i64}},
	expNewArrayBuffer:   {[]api.ValueType{i32, i32, i32}, []api.ValueType{i64}},
	expNewFunction:      {[]api.ValueType{i32, i32, i32, i32}, []api.ValueType{i64}},
	expFunctionSlot:     {[]api.ValueType{i32, i64}, []api.ValueType{i32}},
	expToBool:           {[]api.ValueType{i32, i64}, []api.ValueType{i32}},
	expToInt64:          {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	expToFloat64:        {[]api.ValueType{i32, i64}, []api.ValueType{f64}},
	expToCString:        {[]api.ValueType{i32, i64}, []api.ValueType{i32}},
	expFreeCString:      {[]api.ValueType{i32, i32}, nil},
	expGetArrayBuffer:   {[]api.ValueType{i32, i64, i32}, []api.ValueType{i32}},
	expDateMillis:       {[]api.ValueType{i32, i64}, []api.ValueType{f64}},
	expArrayLength:      {[]api.ValueType{i32, i64}, []api.ValueType{i32}},
	expGetPropertyStr:   {[]api.ValueType{i32, i64, i32}, []api.ValueType{i64}},
	expSetPropertyStr:   {[]api.ValueType{i32, i64, i32, i64}, []api.ValueType{i32}},
	expGetPropertyU32:   {[]api.ValueType{i32, i64, i32}, []api.ValueType{i64}},
	expDefinePropU32:    {[]api.ValueType{i32, i64, i32, i64}, []api.ValueType{i32}},
	expPropertyNames:    {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	expGlobalObject:     {[]api.ValueType{i32}, []api.ValueType{i64}},
	expHasException:     {[]api.ValueType{i32}, []api.ValueType{i32}},
	expGetException:     {[]api.ValueType{i32}, []api.ValueType{i64}},
	expThrow:            {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	expThrowError:       {[]api.ValueType{i32, i32, i32}, []api.ValueType{i64}},
	expExecutePending:   {[]api.ValueType{i32}, []api.ValueType{i32}},
	expSetModuleLoader:  {[]api.ValueType{i32}, nil},
	expEnableRejections: {[]api.ValueType{i32}, nil},
}

// validateABI checks the compiled artifact against the export table.
func validateABI(mod wazero.CompiledModule) error {
	exports := mod.ExportedFunctions()
	for name, sig := range requiredExports {
		def, ok := exports[name]
		if !ok {
			return fmt.Errorf("engine artifact missing export %q", name)
		}
		if !slices.Equal(def.ParamTypes(), sig.params) {
			return fmt.Errorf("export %q has wrong parameter types", name)
		}
		if !slices.Equal(def.ResultTypes(), sig.results) {
			return fmt.Errorf("export %q has wrong result types", name)
		}
	}
	return nil
}
