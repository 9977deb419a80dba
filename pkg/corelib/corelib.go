// Package corelib is a demonstration embedder: it registers a small OS
// class and a Digest class against a *vm.VM purely through the embedding
// API (pkg/vm/api.go), the same way the spec's own out-of-scope "core"
// script would register Number/String/Bool/List/Range. Nothing in this
// package reaches into pkg/vm's internals; it only calls exported methods
// a third-party embedder could call too.
package corelib

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"runtime"

	"github.com/progalt/solis/pkg/value"
	"github.com/progalt/solis/pkg/vm"
)

// Register installs OS and Digest into v. Following solis_core.c's
// sandboxing rule, OS (host platform information) is skipped entirely when
// the VM was constructed with vm.WithSandbox(true); Digest has no OS/FFI
// surface so it is always registered.
func Register(v *vm.VM) {
	registerDigest(v)
	if !v.Sandboxed() {
		registerOS(v)
	}
}

// registerOS adds a static-only OS class with getPlatformString, mirroring
// solis_core.c's os_getPlatformString (SOLIS_PLATFORM_STRING) via Go's
// runtime.GOOS.
func registerOS(v *vm.VM) {
	class := v.CreateClass("OS")
	v.AddClassNativeStaticMethod(class, "getPlatformString", 0, func(ctx value.NativeContext) {
		ctx.SetReturnValue(value.ObjValue(v.Intern(runtime.GOOS)))
	})
	v.PushGlobal("OS", value.ObjValue(class))
}

// registerDigest adds a Digest class wrapping crypto/sha256 and
// encoding/base64, the two primitives solis_core.c's grab-bag handled as
// direct crypto calls and this spec instead exposes as ordinary
// NativeFunctions behind class dispatch.
func registerDigest(v *vm.VM) {
	class := v.CreateClass("Digest")

	v.AddClassNativeStaticMethod(class, "sha256Hex", 1, func(ctx value.NativeContext) {
		s, ok := argString(ctx, 0)
		if !ok {
			ctx.RaiseError("Digest.sha256Hex expects a string argument")
			return
		}
		sum := sha256.Sum256([]byte(s))
		ctx.SetReturnValue(value.ObjValue(v.Intern(hex.EncodeToString(sum[:]))))
	})

	v.AddClassNativeStaticMethod(class, "base64Encode", 1, func(ctx value.NativeContext) {
		s, ok := argString(ctx, 0)
		if !ok {
			ctx.RaiseError("Digest.base64Encode expects a string argument")
			return
		}
		ctx.SetReturnValue(value.ObjValue(v.Intern(base64.StdEncoding.EncodeToString([]byte(s)))))
	})

	v.AddClassNativeStaticMethod(class, "base64Decode", 1, func(ctx value.NativeContext) {
		s, ok := argString(ctx, 0)
		if !ok {
			ctx.RaiseError("Digest.base64Decode expects a string argument")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			ctx.RaiseError("Digest.base64Decode: %v", err)
			return
		}
		ctx.SetReturnValue(value.ObjValue(v.Intern(string(decoded))))
	})

	v.PushGlobal("Digest", value.ObjValue(class))
}

func argString(ctx value.NativeContext, i int) (string, bool) {
	if i >= ctx.ArgCount() {
		return "", false
	}
	arg := ctx.Argument(i)
	if !arg.IsObjType(value.ObjString) {
		return "", false
	}
	return arg.AsString().Chars, true
}
