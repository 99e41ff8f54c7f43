// Package wire encodes packets for the NATS transport. The encoding is
// plain protobuf wire format with a fixed field layout, so captures can be
// consumed from any protobuf toolchain without sharing generated code.
package wire

import (
	"fmt"
	"net"
	"time"

	"NetSentry/internal/model"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the packet message. The layout is append-only; numbers
// are never reused.
const (
	fieldTimestamp = 1
	fieldSrcIP     = 2
	fieldDstIP     = 3
	fieldSrcPort   = 4
	fieldDstPort   = 5
	fieldProtocol  = 6
	fieldLength    = 7
	fieldTCPFlags  = 8
	fieldPayload   = 9
)

// MarshalPacket encodes a packet. Zero-valued fields are omitted, matching
// proto3 semantics.
func MarshalPacket(pkt *model.PacketInfo) []byte {
	buf := make([]byte, 0, 64+len(pkt.Payload))

	buf = protowire.AppendTag(buf, fieldTimestamp, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(pkt.Timestamp.UnixNano()))

	if len(pkt.FiveTuple.SrcIP) > 0 {
		buf = protowire.AppendTag(buf, fieldSrcIP, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pkt.FiveTuple.SrcIP)
	}
	if len(pkt.FiveTuple.DstIP) > 0 {
		buf = protowire.AppendTag(buf, fieldDstIP, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pkt.FiveTuple.DstIP)
	}
	if pkt.FiveTuple.SrcPort != 0 {
		buf = protowire.AppendTag(buf, fieldSrcPort, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(pkt.FiveTuple.SrcPort))
	}
	if pkt.FiveTuple.DstPort != 0 {
		buf = protowire.AppendTag(buf, fieldDstPort, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(pkt.FiveTuple.DstPort))
	}
	if pkt.FiveTuple.Protocol != 0 {
		buf = protowire.AppendTag(buf, fieldProtocol, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(pkt.FiveTuple.Protocol))
	}
	if pkt.Length != 0 {
		buf = protowire.AppendTag(buf, fieldLength, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(pkt.Length))
	}
	if pkt.TCPFlags != 0 {
		buf = protowire.AppendTag(buf, fieldTCPFlags, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(pkt.TCPFlags))
	}
	if len(pkt.Payload) > 0 {
		buf = protowire.AppendTag(buf, fieldPayload, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pkt.Payload)
	}
	return buf
}

// UnmarshalPacket decodes a packet. Unknown fields from newer senders are
// skipped, not rejected.
func UnmarshalPacket(data []byte) (*model.PacketInfo, error) {
	pkt := &model.PacketInfo{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, consumeErr("field tag", n)
		}
		data = data[n:]

		switch {
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("timestamp", n)
			}
			pkt.Timestamp = time.Unix(0, int64(v))
			data = data[n:]
		case num == fieldSrcIP && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, consumeErr("src ip", n)
			}
			pkt.FiveTuple.SrcIP = net.IP(append([]byte(nil), b...))
			data = data[n:]
		case num == fieldDstIP && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, consumeErr("dst ip", n)
			}
			pkt.FiveTuple.DstIP = net.IP(append([]byte(nil), b...))
			data = data[n:]
		case num == fieldSrcPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("src port", n)
			}
			pkt.FiveTuple.SrcPort = uint16(v)
			data = data[n:]
		case num == fieldDstPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("dst port", n)
			}
			pkt.FiveTuple.DstPort = uint16(v)
			data = data[n:]
		case num == fieldProtocol && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("protocol", n)
			}
			pkt.FiveTuple.Protocol = uint8(v)
			data = data[n:]
		case num == fieldLength && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("length", n)
			}
			pkt.Length = int(v)
			data = data[n:]
		case num == fieldTCPFlags && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, consumeErr("tcp flags", n)
			}
			pkt.TCPFlags = uint8(v)
			data = data[n:]
		case num == fieldPayload && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, consumeErr("payload", n)
			}
			pkt.Payload = append([]byte(nil), b...)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, consumeErr(fmt.Sprintf("field %d", num), n)
			}
			data = data[n:]
		}
	}
	return pkt, nil
}

func consumeErr(what string, n int) error {
	return fmt.Errorf("failed to decode %s: %w", what, protowire.ParseError(n))
}
