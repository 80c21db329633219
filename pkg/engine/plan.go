package engine

import (
	"bytes"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// planMagic prefixes every serialized plan file.
var planMagic = []byte("GLOWPLAN")

// BindingKind distinguishes input from output bindings.
type BindingKind int

const (
	BindingInput BindingKind = iota
	BindingOutput
)

// BindingDesc describes one named tensor slot of the engine. A dim of
// -1 is dynamic and resolves against the bound input shape at run time.
type BindingDesc struct {
	Name string
	Kind BindingKind
	Dims [4]int
}

// Plan is the deserialized form of a compiled segmentation model. The
// weight payload stays opaque; only the container framing is ours.
type Plan struct {
	Name     string
	Classes  int
	Bindings []BindingDesc
	Weights  []byte
}

// Container field numbers. The body after the magic is a sequence of
// protowire fields.
const (
	fieldName     = 1 // bytes
	fieldClasses  = 2 // varint
	fieldBinding  = 3 // bytes, repeated
	fieldWeights  = 4 // bytes
	bindName      = 1 // bytes
	bindKind      = 2 // varint
	bindDim       = 3 // sint64, repeated (4 entries)
)

// Marshal serializes the plan into its file format.
func (p *Plan) Marshal() []byte {
	out := append([]byte{}, planMagic...)
	out = protowire.AppendTag(out, fieldName, protowire.BytesType)
	out = protowire.AppendBytes(out, []byte(p.Name))
	out = protowire.AppendTag(out, fieldClasses, protowire.VarintType)
	out = protowire.AppendVarint(out, uint64(p.Classes))
	for _, b := range p.Bindings {
		var buf []byte
		buf = protowire.AppendTag(buf, bindName, protowire.BytesType)
		buf = protowire.AppendBytes(buf, []byte(b.Name))
		buf = protowire.AppendTag(buf, bindKind, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(b.Kind))
		for _, d := range b.Dims {
			buf = protowire.AppendTag(buf, bindDim, protowire.VarintType)
			buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(int64(d)))
		}
		out = protowire.AppendTag(out, fieldBinding, protowire.BytesType)
		out = protowire.AppendBytes(out, buf)
	}
	out = protowire.AppendTag(out, fieldWeights, protowire.BytesType)
	out = protowire.AppendBytes(out, p.Weights)
	return out
}

// UnmarshalPlan parses a serialized plan.
func UnmarshalPlan(data []byte) (*Plan, error) {
	if !bytes.HasPrefix(data, planMagic) {
		return nil, fmt.Errorf("engine: bad plan magic")
	}
	p := &Plan{}
	b := data[len(planMagic):]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("engine: corrupt plan tag")
		}
		b = b[n:]
		switch {
		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("engine: corrupt plan name")
			}
			p.Name = string(v)
			b = b[n:]
		case num == fieldClasses && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("engine: corrupt class count")
			}
			p.Classes = int(v)
			b = b[n:]
		case num == fieldBinding && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("engine: corrupt binding")
			}
			bd, err := unmarshalBinding(v)
			if err != nil {
				return nil, err
			}
			p.Bindings = append(p.Bindings, bd)
			b = b[n:]
		case num == fieldWeights && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("engine: corrupt weights")
			}
			p.Weights = append([]byte{}, v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("engine: corrupt plan field %d", num)
			}
			b = b[n:]
		}
	}
	if p.Classes <= 0 {
		return nil, fmt.Errorf("engine: plan declares %d classes", p.Classes)
	}
	if len(p.Bindings) < 2 || p.Bindings[0].Kind != BindingInput {
		return nil, fmt.Errorf("engine: plan needs an input binding and at least one output")
	}
	return p, nil
}

func unmarshalBinding(b []byte) (BindingDesc, error) {
	var bd BindingDesc
	dims := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return bd, fmt.Errorf("engine: corrupt binding tag")
		}
		b = b[n:]
		switch {
		case num == bindName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return bd, fmt.Errorf("engine: corrupt binding name")
			}
			bd.Name = string(v)
			b = b[n:]
		case num == bindKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return bd, fmt.Errorf("engine: corrupt binding kind")
			}
			bd.Kind = BindingKind(v)
			b = b[n:]
		case num == bindDim && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return bd, fmt.Errorf("engine: corrupt binding dim")
			}
			if dims < 4 {
				bd.Dims[dims] = int(protowire.DecodeZigZag(v))
				dims++
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return bd, fmt.Errorf("engine: corrupt binding field %d", num)
			}
			b = b[n:]
		}
	}
	if dims != 4 {
		return bd, fmt.Errorf("engine: binding %q has %d dims, want 4", bd.Name, dims)
	}
	return bd, nil
}

// BuildSegmentationPlan assembles a plan with the standard two-binding
// layout: a dynamic NCHW input and a per-class score output whose batch
// and spatial dims are dynamic. Used by tooling and tests.
func BuildSegmentationPlan(name string, classes int, weights []byte) *Plan {
	return &Plan{
		Name:    name,
		Classes: classes,
		Bindings: []BindingDesc{
			{Name: "input", Kind: BindingInput, Dims: [4]int{-1, 3, -1, -1}},
			{Name: "scores", Kind: BindingOutput, Dims: [4]int{-1, classes, -1, -1}},
		},
		Weights: weights,
	}
}

// ReadPlanFile loads the raw plan bytes from disk.
func ReadPlanFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read plan %s: %w", path, err)
	}
	return data, nil
}
