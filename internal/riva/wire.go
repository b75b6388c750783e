package riva

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers from riva_asr.proto / riva_audio.proto.
const (
	recognizeRequestConfig = 1
	recognizeRequestAudio  = 2

	configEncoding             = 1
	configSampleRateHertz      = 2
	configLanguageCode         = 3
	configMaxAlternatives      = 4
	configSpeechContexts       = 6
	configAudioChannelCount    = 7
	configAutomaticPunctuation = 11
	configModel                = 13

	speechContextPhrases = 1
	speechContextBoost   = 4

	recognizeResponseResults = 1
	resultAlternatives       = 1
	alternativeTranscript    = 1
	alternativeConfidence    = 2

	encodingLinearPCM = 1
)

// recognitionConfig mirrors the RecognitionConfig fields this client sets.
type recognitionConfig struct {
	SampleRateHertz      int32
	LanguageCode         string
	MaxAlternatives      int32
	AudioChannelCount    int32
	AutomaticPunctuation bool
	Model                string
	SpeechPhrases        []SpeechPhrase
}

// alternative is one SpeechRecognitionAlternative.
type alternative struct {
	Transcript string
	Confidence float32
}

func encodeRecognizeRequest(cfg recognitionConfig, audio []byte) []byte {
	var c []byte
	c = protowire.AppendTag(c, configEncoding, protowire.VarintType)
	c = protowire.AppendVarint(c, encodingLinearPCM)
	c = protowire.AppendTag(c, configSampleRateHertz, protowire.VarintType)
	c = protowire.AppendVarint(c, uint64(cfg.SampleRateHertz))
	if cfg.LanguageCode != "" {
		c = protowire.AppendTag(c, configLanguageCode, protowire.BytesType)
		c = protowire.AppendString(c, cfg.LanguageCode)
	}
	if cfg.MaxAlternatives > 0 {
		c = protowire.AppendTag(c, configMaxAlternatives, protowire.VarintType)
		c = protowire.AppendVarint(c, uint64(cfg.MaxAlternatives))
	}
	for _, phrase := range cfg.SpeechPhrases {
		var sc []byte
		sc = protowire.AppendTag(sc, speechContextPhrases, protowire.BytesType)
		sc = protowire.AppendString(sc, phrase.Phrase)
		sc = protowire.AppendTag(sc, speechContextBoost, protowire.Fixed32Type)
		sc = protowire.AppendFixed32(sc, math.Float32bits(phrase.Boost))
		c = protowire.AppendTag(c, configSpeechContexts, protowire.BytesType)
		c = protowire.AppendBytes(c, sc)
	}
	c = protowire.AppendTag(c, configAudioChannelCount, protowire.VarintType)
	c = protowire.AppendVarint(c, uint64(cfg.AudioChannelCount))
	if cfg.AutomaticPunctuation {
		c = protowire.AppendTag(c, configAutomaticPunctuation, protowire.VarintType)
		c = protowire.AppendVarint(c, 1)
	}
	if cfg.Model != "" {
		c = protowire.AppendTag(c, configModel, protowire.BytesType)
		c = protowire.AppendString(c, cfg.Model)
	}

	var b []byte
	b = protowire.AppendTag(b, recognizeRequestConfig, protowire.BytesType)
	b = protowire.AppendBytes(b, c)
	b = protowire.AppendTag(b, recognizeRequestAudio, protowire.BytesType)
	b = protowire.AppendBytes(b, audio)
	return b
}

// decodeRecognizeResponse returns the alternatives of every result, in order.
func decodeRecognizeResponse(b []byte) ([][]alternative, error) {
	var results [][]alternative
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		if num != recognizeResponseResults || typ != protowire.BytesType {
			return nil
		}
		var alts []alternative
		err := walkFields(value, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
			if num != resultAlternatives || typ != protowire.BytesType {
				return nil
			}
			alt, err := decodeAlternative(value)
			if err != nil {
				return err
			}
			alts = append(alts, alt)
			return nil
		})
		if err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		results = append(results, alts)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode recognize response: %w", err)
	}
	return results, nil
}

func decodeAlternative(b []byte) (alternative, error) {
	var alt alternative
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
		switch {
		case num == alternativeTranscript && typ == protowire.BytesType:
			alt.Transcript = string(value)
		case num == alternativeConfidence && typ == protowire.Fixed32Type:
			alt.Confidence = math.Float32frombits(uint32(scalar))
		}
		return nil
	})
	return alt, err
}

// walkFields visits each top-level field. Length-delimited values arrive in
// value; varint and fixed values arrive in scalar.
func walkFields(b []byte, visit func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var (
			value  []byte
			scalar uint64
		)
		switch typ {
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			scalar = uint64(v)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := visit(num, typ, value, scalar); err != nil {
			return err
		}
	}
	return nil
}

var errEmptyAudio = errors.New("riva recognize: empty audio")
