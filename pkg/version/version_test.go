package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort_UsesLinkerValue(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = "1.2.3"

	assert.Equal(t, "1.2.3", Short())
	assert.True(t, strings.HasPrefix(String(), "iiifstore 1.2.3 "))
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Version)
}
