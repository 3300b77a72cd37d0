package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%41t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		// uints
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '%4o'", uint64(0777)) },
			"uint arg with padding: '0777'",
		},
		{
			func() { printfn("uint arg with padding: '0x%10x'", uint64(0xbadf00d)) },
			"uint arg with padding: '0x000badf00d'",
		},
		{
			func() { printfn("uint arg longer than padding: '0x%5x'", int64(0xbadf00d)) },
			"uint arg longer than padding: '0xbadf00d'",
		},
		{
			func() { printfn("frame at 0x%16x", uintptr(0x100000)) },
			"frame at 0x0000000000100000",
		},
		{
			func() { printfn("zero: %d", 0) },
			"zero: 0",
		},
		// ints
		{
			func() { printfn("int arg: %d", int8(-10)) },
			"int arg: -10",
		},
		{
			func() { printfn("int arg with padding: '%6d'", int(-123)) },
			"int arg with padding: '  -123'",
		},
		{
			func() { printfn("int arg with padding: '%6x'", int32(-0xab)) },
			"int arg with padding: '-000ab'",
		},
		{
			func() { printfn("int arg: %d", int16(321)) },
			"int arg: 321",
		},
		// escaped percent
		{
			func() { printfn("100%%") },
			"100%",
		},
		// errors
		{
			func() { printfn("missing: %d") },
			"missing: %!(MISSING)",
		},
		{
			func() { printfn("wrong type: %d", "foo") },
			"wrong type: %!(WRONGTYPE)",
		},
		{
			func() { printfn("wrong type: %s", 42) },
			"wrong type: %!(WRONGTYPE)",
		},
		{
			func() { printfn("wrong type: %t", 1) },
			"wrong type: %!(WRONGTYPE)",
		},
		{
			func() { printfn("extra", 1, 2) },
			"extra%!(EXTRA)%!(EXTRA)",
		},
		{
			func() { printfn("unknown verb: %q") },
			"unknown verb: %!(NOVERB)",
		},
		{
			func() { printfn("trailing %12") },
			"trailing %!(NOVERB)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	// mute vet warnings about malformed printf formatting strings
	fprintfn := Fprintf

	fprintfn(&buf, "[%s] mapped %d pages at 0x%x", "vmm", 3, uintptr(0x5555_5555_1000))

	if exp, got := "[vmm] mapped 3 pages at 0x555555551000", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}

func TestPrintfToRingBuffer(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyPrintBuffer = ringBuffer{}
	}()

	outputSink = nil
	earlyPrintBuffer = ringBuffer{}

	exp := "buffered until a sink is attached"
	Printf("%s", exp)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if got := buf.String(); got != exp {
		t.Fatalf("expected SetOutputSink to drain %q; got %q", exp, got)
	}

	if GetOutputSink() != &buf {
		t.Fatal("expected GetOutputSink to return the attached sink")
	}
}
