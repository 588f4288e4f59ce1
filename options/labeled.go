package options

import "edgetun/internal/proto"

// LabeledOptions configures a tunnel that is routed by labels instead of
// a protocol endpoint. Only the metadata and forwards-to settings of
// Common apply.
type LabeledOptions struct {
	Common     CommonOpts
	LabelPairs map[string]string
}

func (o LabeledOptions) ForwardsTo() string     { return o.Common.forwardsTo() }
func (o LabeledOptions) Extra() proto.BindExtra { return o.Common.extra() }
func (o LabeledOptions) Proto() string          { return "" }
func (o LabeledOptions) Opts() *proto.BindOpts  { return nil }

func (o LabeledOptions) Labels() map[string]string {
	out := make(map[string]string, len(o.LabelPairs))
	for k, v := range o.LabelPairs {
		out[k] = v
	}
	return out
}

// WithForwardsTo overrides the forwards-to label.
func (o *LabeledOptions) WithForwardsTo(s string) { o.Common.ForwardsTo = s }

// Clone returns an independent copy.
func (o LabeledOptions) Clone() LabeledOptions {
	o.Common = o.Common.clone()
	if o.LabelPairs != nil {
		o.LabelPairs = o.Labels()
	}
	return o
}
