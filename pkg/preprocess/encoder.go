package preprocess

import (
	"bytes"
	"encoding/gob"
	"sort"

	"github.com/pkg/errors"
)

// LabelEncoder maps label strings to dense codes 0..n-1 in sorted order.
type LabelEncoder struct {
	classes []string
	codes   map[string]int
}

// FitLabelEncoder learns the distinct labels. Codes follow the sorted
// order of the labels, so equal inputs always produce equal codecs.
func FitLabelEncoder(labels []string) (*LabelEncoder, error) {
	if len(labels) == 0 {
		return nil, errors.New("label encoder: no labels to fit")
	}

	seen := make(map[string]struct{})
	var classes []string
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		classes = append(classes, l)
	}
	sort.Strings(classes)

	return newLabelEncoder(classes), nil
}

func newLabelEncoder(classes []string) *LabelEncoder {
	e := &LabelEncoder{
		classes: classes,
		codes:   make(map[string]int, len(classes)),
	}
	for i, c := range classes {
		e.codes[c] = i
	}
	return e
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Classes returns the class names indexed by code.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Encode returns the code of label. Labels unseen at fit time are an error.
func (e *LabelEncoder) Encode(label string) (int, error) {
	code, ok := e.codes[label]
	if !ok {
		return 0, errors.Errorf("label encoder: unseen label %q", label)
	}
	return code, nil
}

// EncodeAll encodes every label.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		code, err := e.Encode(l)
		if err != nil {
			return nil, err
		}
		out[i] = code
	}
	return out, nil
}

// Decode returns the label of code.
func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", errors.Errorf("label encoder: code %d out of range [0, %d)", code, len(e.classes))
	}
	return e.classes[code], nil
}

type labelEncoderState struct {
	Classes []string
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (e *LabelEncoder) MarshalBinary() ([]byte, error) {
	if e.classes == nil {
		return nil, errors.New("label encoder: not fitted")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(labelEncoderState{Classes: e.classes}); err != nil {
		return nil, errors.Wrap(err, "label encoder: encode")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It only accepts
// a zero-value receiver; fitted encoders are read-only.
func (e *LabelEncoder) UnmarshalBinary(data []byte) error {
	if e.classes != nil {
		return errors.New("label encoder: already fitted")
	}
	var state labelEncoderState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "label encoder: decode")
	}
	if len(state.Classes) == 0 {
		return errors.New("label encoder: no classes in payload")
	}
	*e = *newLabelEncoder(state.Classes)
	return nil
}
