package plugindomain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestManifest_ConfigRelPath tests normalization of the declared config path
func TestManifest_ConfigRelPath(t *testing.T) {
	tests := []struct {
		name       string
		configPath string
		expected   string
	}{
		{name: "Empty_ShouldBeEmpty", configPath: "", expected: ""},
		{name: "DotSlashPrefix_ShouldBeStripped", configPath: "./cfg", expected: "cfg"},
		{name: "NoPrefix_ShouldBeKept", configPath: "cfg", expected: "cfg"},
		{name: "Nested_ShouldBeCleaned", configPath: "./conf/./plugin/", expected: "conf/plugin"},
		{name: "OnlyDot_ShouldBeEmpty", configPath: "./", expected: ""},
		{name: "Whitespace_ShouldBeEmpty", configPath: "  ", expected: ""},
		{name: "OnlyFirstPrefix_ShouldBeStripped", configPath: "././cfg", expected: "cfg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Manifest{PluginID: "f1", PluginName: "foo", ConfigPath: tt.configPath}
			assert.Equal(t, tt.expected, m.ConfigRelPath())
			assert.Equal(t, tt.expected != "", m.HasConfig())
		})
	}
}

// TestDescriptor_Validate tests rejection of descriptors that cannot name a plugin directory
func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name        string
		descriptor  Descriptor
		expectError bool
	}{
		{name: "Valid_ShouldPass", descriptor: Descriptor{PluginID: "f1", PluginName: "foo"}},
		{name: "DottedID_ShouldPass", descriptor: Descriptor{PluginID: "f1.v2", PluginName: "foo"}},
		{name: "EmptyID_ShouldFail", descriptor: Descriptor{PluginID: "", PluginName: "foo"}, expectError: true},
		{name: "DotID_ShouldFail", descriptor: Descriptor{PluginID: ".", PluginName: "foo"}, expectError: true},
		{name: "ParentID_ShouldFail", descriptor: Descriptor{PluginID: "..", PluginName: "foo"}, expectError: true},
		{name: "NestedID_ShouldFail", descriptor: Descriptor{PluginID: "a/b", PluginName: "foo"}, expectError: true},
		{name: "BackslashID_ShouldFail", descriptor: Descriptor{PluginID: `a\b`, PluginName: "foo"}, expectError: true},
		{name: "EmptyName_ShouldFail", descriptor: Descriptor{PluginID: "f1", PluginName: ""}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.descriptor.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestManifest_Descriptor tests reduction of a manifest to its persisted identity
func TestManifest_Descriptor(t *testing.T) {
	m := Manifest{PluginID: "f1", PluginName: "foo", ConfigPath: "./cfg", Version: "1.0.0"}

	assert.Equal(t, Descriptor{PluginID: "f1", PluginName: "foo"}, m.Descriptor())
}

// TestRegistry_Lookups tests id and name lookups on the registry
func TestRegistry_Lookups(t *testing.T) {
	reg := Registry{
		{PluginID: "a1", PluginName: "alpha"},
		{PluginID: "b1", PluginName: "beta"},
		{PluginID: "a2", PluginName: "alpha"},
	}

	assert.Equal(t, 1, reg.IndexOfID("b1"))
	assert.Equal(t, -1, reg.IndexOfID("zz"))
	assert.True(t, reg.ContainsID("a2"))
	assert.False(t, reg.ContainsID("alpha"))

	matches := reg.MatchName("alpha")
	require.Len(t, matches, 2)
	assert.Equal(t, "a1", matches[0].PluginID)
	assert.Equal(t, "a2", matches[1].PluginID)

	assert.Empty(t, reg.MatchName("gamma"))
}

// TestRegistry_Without_PropertyBased tests that Without drops exactly the given id
func TestRegistry_Without_PropertyBased(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z][a-z0-9]{0,6}`), func(s string) string { return s }).Draw(t, "ids")
		reg := make(Registry, 0, len(ids))
		for _, id := range ids {
			reg = append(reg, Descriptor{PluginID: id, PluginName: "n-" + id})
		}

		target := rapid.StringMatching(`[a-z][a-z0-9]{0,6}`).Draw(t, "target")
		out := reg.Without(target)

		assert.False(t, out.ContainsID(target))
		if reg.ContainsID(target) {
			assert.Len(t, out, len(reg)-1)
		} else {
			assert.Equal(t, reg, out)
		}
		assert.Len(t, reg, len(ids), "Without must not modify the receiver")
	})
}

// TestOperationError_Unwrap tests that operation errors keep the underlying cause
func TestOperationError_Unwrap(t *testing.T) {
	err := &OperationError{Op: "install", Plugin: "foo", Err: ErrManifestMissing}

	assert.True(t, errors.Is(err, ErrManifestMissing))
	assert.Equal(t, "install foo: plugin manifest not found", err.Error())

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "foo", opErr.Plugin)
}

// TestErrFilesystemOp tests that filesystem errors wrap both the sentinel and the cause
func TestErrFilesystemOp(t *testing.T) {
	cause := errors.New("permission denied")
	err := ErrFilesystemOp("remove", "/tmp/x", cause)

	assert.ErrorIs(t, err, ErrFilesystem)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "remove /tmp/x")
}
