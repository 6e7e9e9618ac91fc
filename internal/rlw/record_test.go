package rlw

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	want := Record{ExitStatus: 0, UserUs: 123456, SysUs: 789, MaxRSSKiB: 20480}

	encoded := want.Encode()
	require.Len(t, encoded, RecordSize)

	got, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeShortReadIsError(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}

func TestDecodeNegativeExitStatus(t *testing.T) {
	want := Record{ExitStatus: -9, UserUs: 1, SysUs: 2, MaxRSSKiB: 3}
	got, err := Decode(bytes.NewReader(want.Encode()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
