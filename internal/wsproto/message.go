// Package wsproto implements the wire envelope carried inside every
// WebSocket binary frame exchanged with the chat server: a WebSocketMessage
// wrapping either a request or a response, per spec section 6.
//
// There is no .proto source in this repo to run protoc against, so the
// messages are encoded/decoded directly against the protobuf wire format
// using google.golang.org/protobuf/encoding/protowire. Field numbers below
// match the envelope described in the spec exactly, so any real generated
// client on the other end of the socket decodes these bytes identically.
package wsproto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// MessageType discriminates a WebSocketMessage's payload.
type MessageType int32

const (
	MessageTypeUnknown  MessageType = 0
	MessageTypeRequest  MessageType = 1
	MessageTypeResponse MessageType = 2
)

// Field numbers for WebSocketMessage.
const (
	fieldMsgType     = 1
	fieldMsgRequest  = 2
	fieldMsgResponse = 3
)

// Field numbers for WebSocketRequestMessage.
const (
	fieldReqVerb      = 1
	fieldReqPath      = 2
	fieldReqBody      = 3
	fieldReqHeaders   = 4
	fieldReqRequestID = 5
)

// Field numbers for WebSocketResponseMessage.
const (
	fieldRespRequestID = 1
	fieldRespStatus    = 2
	fieldRespMessage   = 3
	fieldRespHeaders   = 4
	fieldRespBody      = 5
)

// Request is WebSocketRequestMessage: verb, path, body, headers, request_id.
type Request struct {
	Verb      string
	Path      string
	Body      []byte
	Headers   []string
	RequestID uint64
}

// Response is WebSocketResponseMessage: request_id, status, message, headers, body.
type Response struct {
	RequestID uint64
	Status    uint32
	Message   string
	Headers   []string
	Body      []byte
}

// Message is the outer WebSocketMessage envelope.
type Message struct {
	Type     MessageType
	Request  *Request
	Response *Response
}

// Marshal encodes a Message to its protobuf wire-format bytes.
func Marshal(m *Message) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldMsgType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))

	switch m.Type {
	case MessageTypeRequest:
		if m.Request == nil {
			return nil, fmt.Errorf("wsproto: message type REQUEST requires a Request payload")
		}
		sub := marshalRequest(m.Request)
		b = protowire.AppendTag(b, fieldMsgRequest, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	case MessageTypeResponse:
		if m.Response == nil {
			return nil, fmt.Errorf("wsproto: message type RESPONSE requires a Response payload")
		}
		sub := marshalResponse(m.Response)
		b = protowire.AppendTag(b, fieldMsgResponse, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	default:
		return nil, fmt.Errorf("wsproto: unknown message type %d", m.Type)
	}
	return b, nil
}

func marshalRequest(r *Request) []byte {
	var b []byte
	if r.Verb != "" {
		b = protowire.AppendTag(b, fieldReqVerb, protowire.BytesType)
		b = protowire.AppendString(b, r.Verb)
	}
	if r.Path != "" {
		b = protowire.AppendTag(b, fieldReqPath, protowire.BytesType)
		b = protowire.AppendString(b, r.Path)
	}
	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldReqBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	for _, h := range r.Headers {
		b = protowire.AppendTag(b, fieldReqHeaders, protowire.BytesType)
		b = protowire.AppendString(b, h)
	}
	b = protowire.AppendTag(b, fieldReqRequestID, protowire.VarintType)
	b = protowire.AppendVarint(b, r.RequestID)
	return b
}

func marshalResponse(r *Response) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldRespRequestID, protowire.VarintType)
	b = protowire.AppendVarint(b, r.RequestID)
	b = protowire.AppendTag(b, fieldRespStatus, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Status))
	if r.Message != "" {
		b = protowire.AppendTag(b, fieldRespMessage, protowire.BytesType)
		b = protowire.AppendString(b, r.Message)
	}
	for _, h := range r.Headers {
		b = protowire.AppendTag(b, fieldRespHeaders, protowire.BytesType)
		b = protowire.AppendString(b, h)
	}
	if len(r.Body) > 0 {
		b = protowire.AppendTag(b, fieldRespBody, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Body)
	}
	return b
}

// Unmarshal decodes a Message from protobuf wire-format bytes.
func Unmarshal(data []byte) (*Message, error) {
	m := &Message{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldMsgType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			m.Type = MessageType(v)
			b = b[n:]
		case fieldMsgRequest:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			req, err := unmarshalRequest(sub)
			if err != nil {
				return nil, err
			}
			m.Request = req
			b = b[n:]
		case fieldMsgResponse:
			sub, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			resp, err := unmarshalResponse(sub)
			if err != nil {
				return nil, err
			}
			m.Response = resp
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return m, nil
}

func unmarshalRequest(data []byte) (*Request, error) {
	r := &Request{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldReqVerb:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Verb = v
			b = b[n:]
		case fieldReqPath:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Path = v
			b = b[n:]
		case fieldReqBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Body = append([]byte(nil), v...)
			b = b[n:]
		case fieldReqHeaders:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Headers = append(r.Headers, v)
			b = b[n:]
		case fieldReqRequestID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.RequestID = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func unmarshalResponse(data []byte) (*Response, error) {
	r := &Response{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldRespRequestID:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.RequestID = v
			b = b[n:]
		case fieldRespStatus:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Status = uint32(v)
			b = b[n:]
		case fieldRespMessage:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Message = v
			b = b[n:]
		case fieldRespHeaders:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Headers = append(r.Headers, v)
			b = b[n:]
		case fieldRespBody:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			r.Body = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}
