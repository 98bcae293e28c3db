// Package models knows the published whisper.cpp ggml models and manages the local
// directory they are downloaded into.
package models

import (
	"slices"
	"strings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "small"

// DefaultRepo hosts the ggml conversions of the OpenAI checkpoints.
const DefaultRepo = "ggerganov/whisper.cpp"

// Model is one downloadable checkpoint.
type Model struct {
	ID string
	// SHA256 is pinned for the most common checkpoints and empty otherwise.
	SHA256 string
}

// FileName is the on-disk and remote name of the model.
func (m Model) FileName() string {
	return "ggml-" + m.ID + ".bin"
}

// Quantized reports whether the checkpoint is a q5/q8 variant.
func (m Model) Quantized() bool {
	return strings.Contains(m.ID, "-q")
}

// EnglishOnly reports whether the checkpoint was trained on English only.
func (m Model) EnglishOnly() bool {
	return strings.Contains(m.ID, ".en")
}

var catalog = []Model{
	{ID: "tiny.en"},
	{ID: "tiny", SHA256: "be07e048e1e599ad46341c8d2a135645097a538221678b7acdd1b1919c6e1b21"},
	{ID: "base.en"},
	{ID: "base", SHA256: "60ed5bc3dd14eea856493d334349b405782ddcaf0028d4b5df4088345fba2efe"},
	{ID: "small.en"},
	{ID: "small", SHA256: "1be3a9b2063867b937e64e2ec7483364a79917e157fa98c5d94b5c1fffea987b"},
	{ID: "medium.en"},
	{ID: "medium", SHA256: "6c14d5adee5f86394037b4e4e8b59f1673b6cee10e3cf0b11bbdbee79c156208"},
	{ID: "large-v1"},
	{ID: "large-v2"},
	{ID: "large-v3", SHA256: "64d182b440b98d5203c4f9bd541544d84c605196c4f7b845dfa11fb23594d1e2"},
	{ID: "large-v3-turbo"},

	{ID: "tiny.en-q5_1"},
	{ID: "tiny.en-q8_0"},
	{ID: "tiny-q5_1"},
	{ID: "tiny-q8_0"},
	{ID: "base.en-q5_1"},
	{ID: "base.en-q8_0"},
	{ID: "base-q5_1"},
	{ID: "base-q8_0"},
	{ID: "small.en-q5_1"},
	{ID: "small.en-q8_0"},
	{ID: "small-q5_1"},
	{ID: "small-q8_0"},
	{ID: "medium.en-q5_0"},
	{ID: "medium.en-q8_0"},
	{ID: "medium-q5_0"},
	{ID: "medium-q8_0"},
	{ID: "large-v2-q5_0"},
	{ID: "large-v2-q8_0"},
	{ID: "large-v3-q5_0"},
	{ID: "large-v3-turbo-q5_0"},
	{ID: "large-v3-turbo-q8_0"},
}

// All returns the catalogue in display order.
func All() []Model {
	return slices.Clone(catalog)
}

// IDs returns every model id in display order.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, m := range catalog {
		ids = append(ids, m.ID)
	}
	return ids
}

// Lookup finds a model by id.
func Lookup(id string) (Model, bool) {
	id = strings.TrimSpace(id)
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
