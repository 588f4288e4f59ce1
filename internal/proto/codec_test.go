package proto

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_Deterministic(t *testing.T) {
	req := BindReq{
		ID:     "req-1",
		Proto:  "",
		Labels: map[string]string{"zeta": "1", "alpha": "2", "mid": "3"},
		Extra:  BindExtra{Token: "tok", Metadata: "m"},
	}
	first, err := Marshal(&req)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Marshal(&req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshal_OmitsAbsentOptions(t *testing.T) {
	data, err := Marshal(&BindReq{ID: "r", Proto: "tcp", Opts: &BindOpts{TCP: &TCPEndpoint{Addr: "a:1"}}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, cbor.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "labels")

	opts, ok := raw["opts"].(map[any]any)
	require.True(t, ok, "opts is %T", raw["opts"])
	assert.Contains(t, opts, "tcp")
	assert.NotContains(t, opts, "http")
	assert.NotContains(t, opts, "tls")

	tcp := opts["tcp"].(map[any]any)
	assert.NotContains(t, tcp, "ip_restriction")
}

func TestMarshal_NilListsAreEmpty(t *testing.T) {
	data, err := Marshal(&IPRestriction{AllowCIDRs: []string{"10.0.0.0/8"}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, cbor.Unmarshal(data, &raw))
	require.Contains(t, raw, "deny_cidrs")
	assert.NotNil(t, raw["deny_cidrs"])
	assert.Empty(t, raw["deny_cidrs"])

	var back IPRestriction
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, []string{"10.0.0.0/8"}, back.AllowCIDRs)
	assert.Empty(t, back.DenyCIDRs)
}

func TestUnmarshal_IgnoresUnknownFields(t *testing.T) {
	data, err := cbor.Marshal(map[string]any{
		"req_id":        "r1",
		"tunnel_id":     "t1",
		"url":           "https://x.edge.test",
		"proto":         "https",
		"added_by_edge": []int{1, 2, 3},
	})
	require.NoError(t, err)

	var resp BindResp
	require.NoError(t, Unmarshal(data, &resp))
	assert.Equal(t, BindResp{ReqID: "r1", TunnelID: "t1", URL: "https://x.edge.test", Proto: "https"}, resp)
}

func TestUnmarshal_Malformed(t *testing.T) {
	var hdr ConnHeader
	assert.Error(t, Unmarshal([]byte{0xff, 0x00}, &hdr))
	assert.Error(t, Unmarshal(nil, &hdr))
}

func TestConnHeader_Wire(t *testing.T) {
	data, err := Marshal(&ConnHeader{TunnelID: "t1", ClientAddr: "198.51.100.1:4000", Proto: "tcp"})
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, cbor.Unmarshal(data, &raw))
	assert.Equal(t, map[string]string{
		"tunnel_id":   "t1",
		"client_addr": "198.51.100.1:4000",
		"proto":       "tcp",
	}, raw)
}
