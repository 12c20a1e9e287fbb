package framed

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/teranos/goload/requester"
)

func serverReadRequest(t *testing.T, conn net.Conn) requestFrame {
	t.Helper()

	var prefix [4]byte
	_, err := io.ReadFull(conn, prefix[:])
	require.NoError(t, err)

	n := binary.BigEndian.Uint32(prefix[:])
	buf := make([]byte, n)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	var req requestFrame
	require.NoError(t, cbor.Unmarshal(buf, &req))
	return req
}

func serverWriteResponse(t *testing.T, conn net.Conn, resp responseFrame) {
	t.Helper()

	b, err := cbor.Marshal(resp)
	require.NoError(t, err)

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(b)))
	_, err = conn.Write(prefix[:])
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)
}

func TestDoRoundTripsOverPersistentConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		req := serverReadRequest(t, server)
		require.Equal(t, "/x", req.Path)
		serverWriteResponse(t, server, responseFrame{Status: 200})
	}()

	r := &Requester{conn: client, timeout: 2 * time.Second}

	result, err := r.Do(context.Background(), requester.Request{Endpoint: "/x", Path: "/x", Method: "GET"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 200, result.Status)
}

func TestDoReportsNonSuccessStatus(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		serverReadRequest(t, server)
		serverWriteResponse(t, server, responseFrame{Status: 503})
	}()

	r := &Requester{conn: client, timeout: 2 * time.Second}

	result, err := r.Do(context.Background(), requester.Request{Endpoint: "/x", Path: "/x"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, 503, result.Status)
}
