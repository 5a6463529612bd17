package message

import (
	"bytes"
	"encoding/gob"
)

// Encode encodes a message for a capture file
func Encode(msg *Message) ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	if err := encoder.Encode(uint32(msg.ID)); err != nil {
		return nil, err
	}
	if err := encoder.Encode(msg.Sequence); err != nil {
		return nil, err
	}
	if err := encoder.Encode(msg.Time.Seconds); err != nil {
		return nil, err
	}
	if err := encoder.Encode(msg.Time.Subseconds); err != nil {
		return nil, err
	}
	if err := encoder.Encode(msg.Data); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode decodes a message written by Encode
func Decode(data []byte) (*Message, error) {
	decoder := gob.NewDecoder(bytes.NewBuffer(data))

	msg := &Message{}
	var id uint32

	if err := decoder.Decode(&id); err != nil {
		return nil, err
	}
	msg.ID = MessageID(id)
	if err := decoder.Decode(&msg.Sequence); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&msg.Time.Seconds); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&msg.Time.Subseconds); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&msg.Data); err != nil {
		return nil, err
	}

	return msg, nil
}
