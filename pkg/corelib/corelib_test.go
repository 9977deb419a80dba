package corelib

import (
	"runtime"
	"testing"

	"github.com/progalt/solis/pkg/value"
	"github.com/progalt/solis/pkg/vm"
)

func TestRegisterDigestSha256Hex(t *testing.T) {
	v := vm.New()
	Register(v)

	digest, ok := v.GetGlobal("Digest")
	if !ok {
		t.Fatal("expected Digest global to be registered")
	}
	class := digest.AsObj().(*value.ObjClass)

	method, ok := v.GetStaticField(class, "sha256Hex")
	if !ok {
		t.Fatal("expected Digest.sha256Hex static method")
	}
	result, err := v.CallFunction(method, value.ObjValue(v.Intern("abc")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Known-answer test vector for sha256("abc").
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := result.AsString().Chars; got != want {
		t.Errorf("sha256Hex(\"abc\") = %q, want %q", got, want)
	}
}

func TestRegisterDigestBase64RoundTrip(t *testing.T) {
	v := vm.New()
	Register(v)

	digest, _ := v.GetGlobal("Digest")
	class := digest.AsObj().(*value.ObjClass)

	encode, _ := v.GetStaticField(class, "base64Encode")
	decode, _ := v.GetStaticField(class, "base64Decode")

	encoded, err := v.CallFunction(encode, value.ObjValue(v.Intern("hello world")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := v.CallFunction(decode, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.AsString().Chars != "hello world" {
		t.Errorf("round trip = %q", decoded.AsString().Chars)
	}
}

func TestRegisterDigestBase64DecodeError(t *testing.T) {
	v := vm.New()
	Register(v)

	digest, _ := v.GetGlobal("Digest")
	class := digest.AsObj().(*value.ObjClass)
	decode, _ := v.GetStaticField(class, "base64Decode")

	_, err := v.CallFunction(decode, value.ObjValue(v.Intern("not valid base64!!")))
	if err == nil {
		t.Fatal("expected an error decoding invalid base64")
	}
}

func TestRegisterOSGetPlatformString(t *testing.T) {
	v := vm.New()
	Register(v)

	osClass, ok := v.GetGlobal("OS")
	if !ok {
		t.Fatal("expected OS global when not sandboxed")
	}
	class := osClass.AsObj().(*value.ObjClass)
	method, ok := v.GetStaticField(class, "getPlatformString")
	if !ok {
		t.Fatal("expected OS.getPlatformString static method")
	}
	result, err := v.CallFunction(method)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.AsString().Chars != runtime.GOOS {
		t.Errorf("getPlatformString() = %q, want %q", result.AsString().Chars, runtime.GOOS)
	}
}

func TestRegisterSandboxedSkipsOS(t *testing.T) {
	v := vm.New(vm.WithSandbox(true))
	Register(v)

	if v.GlobalExists("OS") {
		t.Error("OS should not be registered on a sandboxed VM")
	}
	if !v.GlobalExists("Digest") {
		t.Error("Digest should still be registered on a sandboxed VM")
	}
}
