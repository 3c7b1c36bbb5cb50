package platform

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeArch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "amd64", want: "x86_64"},
		{in: "X86_64", want: "x86_64"},
		{in: "arm64", want: "aarch64"},
		{in: " ppc64le ", want: "ppc64le"},
		{in: "loongarch64", want: "loongarch64"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArch(tt.in))
		})
	}
}

func TestBaseArch(t *testing.T) {
	tests := []struct {
		arch string
		want string
	}{
		{arch: "x86_64", want: "x86_64"},
		{arch: "amd64", want: "x86_64"},
		{arch: "i686", want: "i386"},
		{arch: "athlon", want: "i386"},
		{arch: "armv7hl", want: "armhfp"},
		{arch: "aarch64", want: "aarch64"},
		{arch: "ppc64p7", want: "ppc64"},
		{arch: "mips", want: "mips"},
	}
	for _, tt := range tests {
		t.Run(tt.arch, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseArch(tt.arch))
		})
	}
}

func TestDetectArch(t *testing.T) {
	orig := kernelArch
	t.Cleanup(func() { kernelArch = orig })

	kernelArch = func() (string, error) { return "aarch64", nil }
	assert.Equal(t, "aarch64", DetectArch())

	kernelArch = func() (string, error) { return "", errors.New("no uname") }
	want, ok := goArchToRPM[runtime.GOARCH]
	if !ok {
		want = runtime.GOARCH
	}
	assert.Equal(t, want, DetectArch())
}

func TestDefaultArches(t *testing.T) {
	assert.Equal(t, []string{"noarch", "x86_64"}, DefaultArches("amd64"))
	assert.Equal(t, []string{"noarch"}, DefaultArches(""))
	assert.Equal(t, []string{"noarch"}, DefaultArches("noarch"))
}
