package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"thinkchat/model"
)

// ParseErrorText is the error event text substituted for a frame that
// cannot be decoded.
const ParseErrorText = "Error parsing server data"

// Decoder splits a server-sent event stream into frames. A frame is one or
// more "data:" lines terminated by a blank line; other fields and comment
// lines are ignored.
type Decoder struct {
	reader *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next returns the payload of the next frame, with multiple data lines
// joined by newlines. It returns io.EOF once the stream is exhausted.
func (d *Decoder) Next() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// A final frame without its blank line still counts
				line = bytes.TrimRight(line, "\r\n")
				if bytes.HasPrefix(line, []byte("data:")) {
					dataLines = append(dataLines, dataField(line))
				}
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, dataField(line))
		}
	}
}

func dataField(line []byte) []byte {
	value := line[len("data:"):]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return value
}

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes one frame payload. A malformed payload yields an error
// event carrying ParseErrorText together with the decode error, so callers
// can dispatch the event and log the cause.
func ParseEvent(payload []byte) (model.StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return parseFailure(fmt.Errorf("invalid frame: %w", err))
	}

	switch t := model.EventType(w.Type); t {
	case model.EventContent, model.EventStrategy, model.EventError:
		var text string
		if err := json.Unmarshal(w.Data, &text); err != nil {
			return parseFailure(fmt.Errorf("invalid %s data: %w", t, err))
		}
		return model.StreamEvent{Type: t, Text: text}, nil

	case model.EventSteps:
		var s model.Step
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return parseFailure(fmt.Errorf("invalid step data: %w", err))
		}
		return model.StreamEvent{Type: t, Step: s}, nil

	case model.EventEnd:
		return model.StreamEvent{Type: t}, nil

	default:
		return parseFailure(fmt.Errorf("unknown event type %q", w.Type))
	}
}

func parseFailure(err error) (model.StreamEvent, error) {
	return model.StreamEvent{Type: model.EventError, Text: ParseErrorText}, err
}
