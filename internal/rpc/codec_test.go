package rpc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantgate/qmt-gateway/internal/gwerr"
)

func TestFrameRoundTrip(t *testing.T) {
	body, err := msgpack.Marshal(map[string]string{"code": "600000.SH"})
	require.NoError(t, err)
	req := Request{ID: 7, Method: "data.instrument", APIKey: "k", Body: body}

	payload, err := msgpack.Marshal(req)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, payload))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	decoded, err := decodeRequest(got)
	require.NoError(t, err)
	assert.Equal(t, req.ID, decoded.ID)
	assert.Equal(t, req.Method, decoded.Method)
	assert.Equal(t, req.APIKey, decoded.APIKey)

	var inner map[string]string
	require.NoError(t, msgpack.Unmarshal(decoded.Body, &inner))
	assert.Equal(t, "600000.SH", inner["code"])
}

func TestReadFrameRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, nil))
	_, err := readFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], maxFrameSize+1)
	_, err := readFrame(bytes.NewReader(header[:]))
	assert.Error(t, err)
}

func TestReadFrameShortPayload(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	buf.Write(header[:])
	buf.Write([]byte("short"))
	_, err := readFrame(&buf)
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, int32(CodeOK), statusOf(nil).Code)

	cases := map[gwerr.Kind]int32{
		gwerr.InvalidArgument:      CodeInvalidArgument,
		gwerr.Unauthenticated:      CodeUnauthenticated,
		gwerr.SessionNotFound:      CodeFailedPrecondition,
		gwerr.ModeRefused:          CodeFailedPrecondition,
		gwerr.SubscriptionNotFound: CodeNotFound,
		gwerr.Timeout:              CodeDeadlineExceeded,
		gwerr.UpstreamUnavailable:  CodeUnavailable,
		gwerr.VendorError:          CodeInternal,
		gwerr.Internal:             CodeInternal,
	}
	for kind, want := range cases {
		st := statusOf(gwerr.New(kind, "op", "boom"))
		assert.Equal(t, want, st.Code, "kind %v", kind)
		assert.NotEmpty(t, st.Message)
	}

	assert.Equal(t, int32(CodeInternal), statusOf(errors.New("plain")).Code)
}

func TestResponseRoundTrip(t *testing.T) {
	body, err := msgpack.Marshal([]string{"1d", "1m"})
	require.NoError(t, err)
	payload, err := encodeResponse(Response{ID: 9, Status: Status{Code: CodeOK}, Body: body})
	require.NoError(t, err)

	var resp Response
	require.NoError(t, msgpack.Unmarshal(payload, &resp))
	assert.Equal(t, uint64(9), resp.ID)
	assert.Equal(t, int32(CodeOK), resp.Status.Code)
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, "trading", classOf("trading.submit_order"))
	assert.Equal(t, "subscription", classOf("data.subscribe"))
	assert.Equal(t, "financial_data", classOf("data.financial"))
	assert.Equal(t, "download", classOf("data.download"))
	assert.Equal(t, "market_data", classOf("data.market"))
	assert.Equal(t, "default", classOf("something.else"))
}
