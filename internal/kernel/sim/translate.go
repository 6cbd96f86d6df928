package sim

import (
	"github.com/GriffinCanCode/srvgate/internal/ipc"
	"github.com/GriffinCanCode/srvgate/internal/result"
)

// translate copies src from one process into dst for another, rewriting every
// translate parameter: handles are copied or moved between handle tables, the
// current-process slot receives a handle to the sender, and mapped buffers
// keep their index into the shared buffer list.
func translate(from, to *Process, src, dst *ipc.CommandBuffer) error {
	hdr := src.Header()
	end := 1 + hdr.Len()
	if end > ipc.MaxWords {
		return result.InvalidCommand
	}

	dst.Reset()
	copy(dst.Words[:1+hdr.Normal()], src.Words[:1+hdr.Normal()])
	dst.Buffers = src.Buffers

	for i := 1 + hdr.Normal(); i < end; {
		desc := src.Words[i]
		dst.Words[i] = desc
		i++

		switch ipc.KindOf(desc) {
		case ipc.DescHandles:
			count := ipc.HandleCount(desc)
			if i+count > end {
				return result.InvalidDescriptor
			}
			for j := 0; j < count; j++ {
				h, err := translateHandle(from, to, desc, Handle(src.Words[i+j]))
				if err != nil {
					return err
				}
				dst.Words[i+j] = uint32(h)
			}
			i += count
		case ipc.DescMapped:
			if i >= end {
				return result.InvalidDescriptor
			}
			idx := src.Words[i]
			if int(idx) >= len(src.Buffers) || uint32(len(src.Buffers[idx].Data)) < ipc.BufferSize(desc) {
				return result.InvalidDescriptor
			}
			dst.Words[i] = idx
			i++
		default:
			return result.InvalidDescriptor
		}
	}
	return nil
}

func translateHandle(from, to *Process, desc uint32, h Handle) (Handle, error) {
	if ipc.IsCurProcess(desc) {
		return to.insert(from)
	}
	if h == 0 {
		return 0, nil
	}
	obj, err := from.lookup(h)
	if err != nil {
		return 0, err
	}
	nh, err := to.insert(obj)
	if err != nil {
		return 0, err
	}
	if ipc.IsMove(desc) && h != CurrentProcess {
		if _, err := from.remove(h); err != nil {
			return 0, err
		}
	}
	return nh, nil
}
