package response

import (
	"encoding/json"
	"strings"
)

// envelopePrefix marks a text field that carries a multi-answer pair. The
// wire protocol only has one text column per item. Fields are stored as
// bytes so text that is not valid UTF-8 survives unchanged.
const (
	envelopePrefix   = "multi:v2:"
	envelopePrefixV1 = "multi:v1:"
)

type multiAnswer struct {
	Text       []byte   `json:"t"`
	Selections [][]byte `json:"s"`
}

type multiAnswerV1 struct {
	Text       string   `json:"t"`
	Selections []string `json:"s"`
}

// EncodeMultiAnswer packs free text and a selection set into one string.
// The result is plain ASCII.
func EncodeMultiAnswer(text string, selections []string) string {
	packed := multiAnswer{Text: []byte(text), Selections: make([][]byte, len(selections))}
	for i, s := range selections {
		packed.Selections[i] = []byte(s)
	}
	data, err := json.Marshal(packed)
	if err != nil {
		// Marshalling byte slices cannot fail.
		panic(err)
	}
	return envelopePrefix + string(data)
}

// DecodeMultiAnswer unpacks a value written by EncodeMultiAnswer, including
// the older multi:v1 form. Values without an envelope are treated as plain
// text with no selections.
func DecodeMultiAnswer(value string) (string, []string) {
	switch {
	case strings.HasPrefix(value, envelopePrefix):
		var decoded multiAnswer
		if err := json.Unmarshal([]byte(strings.TrimPrefix(value, envelopePrefix)), &decoded); err != nil {
			return value, []string{}
		}
		selections := make([]string, len(decoded.Selections))
		for i, s := range decoded.Selections {
			selections[i] = string(s)
		}
		return string(decoded.Text), selections
	case strings.HasPrefix(value, envelopePrefixV1):
		var decoded multiAnswerV1
		if err := json.Unmarshal([]byte(strings.TrimPrefix(value, envelopePrefixV1)), &decoded); err != nil {
			return value, []string{}
		}
		if decoded.Selections == nil {
			decoded.Selections = []string{}
		}
		return decoded.Text, decoded.Selections
	default:
		return value, []string{}
	}
}
