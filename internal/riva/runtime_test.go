package riva

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bettervoice/bettervoice/internal/asr"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

type receivedRequest struct {
	method   string
	config   map[protowire.Number][]any
	contexts []SpeechPhrase
	audio    []byte
}

type testRivaServer struct {
	mu        sync.Mutex
	received  []receivedRequest
	results   [][]alternative
	streamErr error
}

func (s *testRivaServer) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)

	var payload []byte
	if err := stream.RecvMsg(&payload); err != nil {
		return err
	}

	got := receivedRequest{method: method, config: map[protowire.Number][]any{}}
	_ = walkFields(payload, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
		switch num {
		case recognizeRequestAudio:
			got.audio = append([]byte(nil), value...)
		case recognizeRequestConfig:
			return walkFields(value, func(num protowire.Number, typ protowire.Type, value []byte, scalar uint64) error {
				if num == configSpeechContexts {
					var phrase SpeechPhrase
					_ = walkFields(value, func(num protowire.Number, _ protowire.Type, value []byte, scalar uint64) error {
						if num == speechContextPhrases {
							phrase.Phrase = string(value)
						}
						if num == speechContextBoost {
							phrase.Boost = math.Float32frombits(uint32(scalar))
						}
						return nil
					})
					got.contexts = append(got.contexts, phrase)
					return nil
				}
				if typ == protowire.BytesType {
					got.config[num] = append(got.config[num], string(value))
				} else {
					got.config[num] = append(got.config[num], scalar)
				}
				return nil
			})
		}
		return nil
	})

	s.mu.Lock()
	s.received = append(s.received, got)
	results := s.results
	streamErr := s.streamErr
	s.mu.Unlock()

	if streamErr != nil {
		return streamErr
	}
	return stream.SendMsg(encodeRecognizeResponse(results))
}

func encodeRecognizeResponse(results [][]alternative) []byte {
	var b []byte
	for _, alts := range results {
		var r []byte
		for _, alt := range alts {
			var a []byte
			a = protowire.AppendTag(a, alternativeTranscript, protowire.BytesType)
			a = protowire.AppendString(a, alt.Transcript)
			a = protowire.AppendTag(a, alternativeConfidence, protowire.Fixed32Type)
			a = protowire.AppendFixed32(a, math.Float32bits(alt.Confidence))
			r = protowire.AppendTag(r, resultAlternatives, protowire.BytesType)
			r = protowire.AppendBytes(r, a)
		}
		b = protowire.AppendTag(b, recognizeResponseResults, protowire.BytesType)
		b = protowire.AppendBytes(b, r)
	}
	return b
}

func startTestRivaServer(t *testing.T, server *testRivaServer) (string, func()) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(rawCodec{}),
		grpc.UnknownServiceHandler(server.handle),
	)
	go func() { _ = grpcServer.Serve(lis) }()

	return lis.Addr().String(), func() {
		grpcServer.Stop()
		_ = lis.Close()
	}
}

func TestRuntimeRecognizeEndToEnd(t *testing.T) {
	server := &testRivaServer{results: [][]alternative{
		{{Transcript: " hello  world ", Confidence: 0.9}},
		{},
		{{Transcript: "hello world again"}},
		{{Transcript: "second phrase"}},
	}}
	endpoint, shutdown := startTestRivaServer(t, server)
	defer shutdown()

	runtime := NewRuntime(Config{
		Endpoint:             endpoint,
		Model:                "parakeet",
		AutomaticPunctuation: true,
		SpeechPhrases: []SpeechPhrase{
			{Phrase: "  BetterVoice  ", Boost: 12},
			{Phrase: "", Boost: 20},
		},
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	engine, err := asr.Open(ctx, "", runtime, nil)
	require.NoError(t, err)
	defer engine.Close()

	text, err := engine.Transcribe(ctx, asr.Request{Samples: []byte{1, 2, 3, 4}, Language: "auto"})
	require.NoError(t, err)
	require.Equal(t, "hello world again second phrase", text)

	require.Len(t, server.received, 1)
	got := server.received[0]
	require.Equal(t, recognizeMethod, got.method)
	require.Equal(t, []byte{1, 2, 3, 4}, got.audio)
	require.Equal(t, []any{uint64(encodingLinearPCM)}, got.config[configEncoding])
	require.Equal(t, []any{uint64(16000)}, got.config[configSampleRateHertz])
	require.Equal(t, []any{"en-US"}, got.config[configLanguageCode])
	require.Equal(t, []any{uint64(1)}, got.config[configAudioChannelCount])
	require.Equal(t, []any{uint64(1)}, got.config[configAutomaticPunctuation])
	require.Equal(t, []any{"parakeet"}, got.config[configModel])
	require.Equal(t, []SpeechPhrase{{Phrase: "BetterVoice", Boost: 12}}, got.contexts)
}

func TestRuntimeExplicitLanguageOverridesDefault(t *testing.T) {
	server := &testRivaServer{}
	endpoint, shutdown := startTestRivaServer(t, server)
	defer shutdown()

	runtime := NewRuntime(Config{Endpoint: endpoint})
	require.NoError(t, runtime.Load(context.Background(), ""))
	defer runtime.Close()

	text, err := runtime.Infer(context.Background(), asr.Request{Samples: []byte{0, 0}, Language: "de-DE"})
	require.NoError(t, err)
	require.Empty(t, text)
	require.Equal(t, []any{"de-DE"}, server.received[0].config[configLanguageCode])
}

func TestRuntimeReturnsServerError(t *testing.T) {
	server := &testRivaServer{streamErr: status.Error(codes.Internal, "boom")}
	endpoint, shutdown := startTestRivaServer(t, server)
	defer shutdown()

	runtime := NewRuntime(Config{Endpoint: endpoint})
	require.NoError(t, runtime.Load(context.Background(), ""))
	defer runtime.Close()

	_, err := runtime.Infer(context.Background(), asr.Request{Samples: []byte{1, 2}})
	require.ErrorContains(t, err, "boom")
}

func TestRuntimeEmptyEndpointAndReadinessTimeout(t *testing.T) {
	err := NewRuntime(Config{Endpoint: "   "}).Load(context.Background(), "")
	require.ErrorContains(t, err, "endpoint is empty")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = NewRuntime(Config{Endpoint: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}).Load(ctx, "")
	require.ErrorContains(t, err, "riva at 127.0.0.1:1 not ready")
}

func TestRuntimeLifecycleWithoutConnection(t *testing.T) {
	runtime := NewRuntime(Config{})
	require.Equal(t, "riva", runtime.Name())
	require.False(t, runtime.RequiresModelFile())
	require.False(t, runtime.Valid())
	require.NoError(t, runtime.Close())

	_, err := runtime.Infer(context.Background(), asr.Request{Samples: []byte{1, 2}})
	require.ErrorIs(t, err, asr.ErrModelNotLoaded)
}

func TestAppendSegmentDedupAndPrefixMerge(t *testing.T) {
	segments := appendSegment(nil, " hello ")
	segments = appendSegment(segments, "hello")
	segments = appendSegment(segments, "hello world")
	segments = appendSegment(segments, "hello")
	segments = appendSegment(segments, "")
	segments = appendSegment(segments, "next")
	require.Equal(t, []string{"hello world", "next"}, segments)
}

func TestRawCodecRejectsForeignTypes(t *testing.T) {
	_, err := rawCodec{}.Marshal("nope")
	require.Error(t, err)
	require.Error(t, rawCodec{}.Unmarshal([]byte{1}, new(string)))

	var out []byte
	require.NoError(t, rawCodec{}.Unmarshal([]byte{1, 2}, &out))
	require.Equal(t, []byte{1, 2}, out)
	b, err := rawCodec{}.Marshal(&out)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2}, b)
}

func TestDecodeRecognizeResponseRejectsGarbage(t *testing.T) {
	_, err := decodeRecognizeResponse([]byte{0x0a, 0x05, 0x01})
	require.Error(t, err)
}
