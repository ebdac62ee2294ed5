package buildinfo

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestInfoPrefersStampedValues(t *testing.T) {
    old := Commit
    Commit = "abc123"
    defer func() { Commit = old }()
    info := Info()
    assert.Equal(t, "abc123", info["commit"])
    assert.Contains(t, info, "version")
}
