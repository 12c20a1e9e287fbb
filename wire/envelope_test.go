package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	e := Envelope{
		Kind: KindAllotment,
		Allotment: &Allotment{
			WorkerID:  2,
			Users:     10,
			HatchRate: 3.5,
			Host:      "http://target",
		},
	}

	b, err := Marshal(e)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	require.Equal(t, KindAllotment, got.Kind)
	require.Equal(t, e.Allotment.WorkerID, got.Allotment.WorkerID)
	require.Equal(t, e.Allotment.Users, got.Allotment.Users)
	require.Equal(t, e.Allotment.HatchRate, got.Allotment.HatchRate)
}

func TestDeterministicEncodingIsStable(t *testing.T) {
	e := Envelope{Kind: KindHello, Hello: &Hello{LoadTestHash: 42, WorkerID: 1}}

	a, err := Marshal(e)
	require.NoError(t, err)
	b, err := Marshal(e)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	e := Envelope{Kind: KindCommand, Command: &Command{Command: CommandRun}}

	require.NoError(t, WriteFrame(&buf, e))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, KindCommand, got.Kind)
	require.Equal(t, CommandRun, got.Command.Command)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := ReadFrame(&buf)
	require.Error(t, err)
}

func TestLoadTestHashStableAcrossNameOrder(t *testing.T) {
	a := LoadTestHash([]string{"Checkout", "Login"})
	b := LoadTestHash([]string{"Login", "Checkout"})
	require.Equal(t, a, b)
}

func TestLoadTestHashDiffersForDifferentScenarios(t *testing.T) {
	a := LoadTestHash([]string{"Checkout"})
	b := LoadTestHash([]string{"Login"})
	require.NotEqual(t, a, b)
}
