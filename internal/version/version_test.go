package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionIsValidSemver(t *testing.T) {
	assert.True(t, IsValid())
	assert.Equal(t, Version, Get())
}

func TestGetBaseVersion(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3-rc.1+build.7"
	assert.Equal(t, "1.2.3", GetBaseVersion())

	Version = "not-a-version"
	assert.Equal(t, "not-a-version", GetBaseVersion())
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Contains(t, info.Platform, "/")

	s := info.String()
	assert.Contains(t, s, "dgxsim "+Version)
	assert.Contains(t, s, info.Platform)
}
