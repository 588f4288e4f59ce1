package options

import "edgetun/internal/proto"

// MutualTLSFromCAs concatenates the given CA certificates, in order, into
// the single buffer the edge expects. The bytes are not parsed.
func MutualTLSFromCAs(cas [][]byte) *proto.MutualTLS {
	n := 0
	for _, ca := range cas {
		n += len(ca)
	}
	aggregated := make([]byte, 0, n)
	for _, ca := range cas {
		aggregated = append(aggregated, ca...)
	}
	return &proto.MutualTLS{MutualTLSCA: aggregated}
}

func cloneCAs(cas [][]byte) [][]byte {
	if cas == nil {
		return nil
	}
	out := make([][]byte, len(cas))
	for i, ca := range cas {
		out[i] = append([]byte(nil), ca...)
	}
	return out
}
