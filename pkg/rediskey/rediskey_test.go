package rediskey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLicenceSequenceKey(t *testing.T) {
	require.Equal(t, "seq:licence:2026", BuildLicenceSequenceKey(2026))
	require.Equal(t, "seq:licence:0999", BuildLicenceSequenceKey(999))
}
