package onnx

import (
	"fmt"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// TextEncoder turns text into token ids without special tokens.
type TextEncoder interface {
	Encode(text string) ([]int, error)
}

// HFTokenizer wraps a HuggingFace tokenizer.json.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenizer reads a tokenizer.json file.
func LoadTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Encode implements TextEncoder.
func (h *HFTokenizer) Encode(text string) ([]int, error) {
	enc, err := h.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, err
	}
	return enc.Ids, nil
}

// Special holds the ids wrapped around and appended to sequences.
type Special struct {
	BOS int `json:"bos_id"`
	EOS int `json:"eos_id"`
	Pad int `json:"pad_id"`
}

// RobertaSpecial are the special ids of RoBERTa-family vocabularies.
var RobertaSpecial = Special{BOS: 0, EOS: 2, Pad: 1}

// TokenBatch is a padded batch of token ids with its attention mask.
type TokenBatch struct {
	IDs    []int64
	Mask   []int64
	Rows   int
	Length int
}

// Tokenize encodes texts, truncates each to maxLength tokens including the
// special tokens, and pads every row to the longest one.
func Tokenize(enc TextEncoder, texts []string, maxLength int, sp Special) (*TokenBatch, error) {
	if maxLength < 2 {
		return nil, fmt.Errorf("max length must be at least 2, got %d", maxLength)
	}
	rows := make([][]int, len(texts))
	longest := 0
	for i, text := range texts {
		ids, err := enc.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("tokenize text %d: %w", i, err)
		}
		if len(ids) > maxLength-2 {
			ids = ids[:maxLength-2]
		}
		row := make([]int, 0, len(ids)+2)
		row = append(row, sp.BOS)
		row = append(row, ids...)
		row = append(row, sp.EOS)
		rows[i] = row
		if len(row) > longest {
			longest = len(row)
		}
	}

	tb := &TokenBatch{
		IDs:    make([]int64, len(rows)*longest),
		Mask:   make([]int64, len(rows)*longest),
		Rows:   len(rows),
		Length: longest,
	}
	for i, row := range rows {
		for j := 0; j < longest; j++ {
			k := i*longest + j
			if j < len(row) {
				tb.IDs[k] = int64(row[j])
				tb.Mask[k] = 1
			} else {
				tb.IDs[k] = int64(sp.Pad)
			}
		}
	}
	return tb, nil
}
