// Package google provides a Transcriber backed by Google Cloud
// Speech-to-Text batch recognition.
package google

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JarrySand/whisper-discord-sub000/internal/segment"
	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// Adapter implements transcribe.Transcriber using Google Cloud
// Speech-to-Text. Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
type Adapter struct {
	client   *speech.Client
	language string
}

// New creates a Google adapter.
func New(ctx context.Context, language string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = "ja-JP"
	}
	return &Adapter{client: c, language: language}, nil
}

// Transcribe runs one synchronous Recognize call for the segment.
func (a *Adapter) Transcribe(ctx context.Context, req *transcribe.Request) (*transcribe.Result, error) {
	lang := req.Language
	if lang == "" {
		lang = a.language
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:        encodingFor(req.Format),
		SampleRateHertz: segment.TargetSampleRate,
		LanguageCode:    lang,
	}
	if len(req.Hotwords) > 0 {
		cfg.SpeechContexts = []*speechpb.SpeechContext{{Phrases: req.Hotwords}}
	}

	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	var (
		texts      []string
		confidence float32
	)
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		texts = append(texts, alt.Transcript)
		if alt.Confidence > confidence {
			confidence = alt.Confidence
		}
	}

	return &transcribe.Result{
		Text:       strings.TrimSpace(strings.Join(texts, " ")),
		Confidence: float64(confidence),
	}, nil
}

// HealthCheck issues a minimal Recognize call. InvalidArgument means
// the service answered, which is all the probe needs to know.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: segment.TargetSampleRate,
			LanguageCode:    a.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: []byte{0, 0}},
		},
	})
	if err != nil && status.Code(err) != codes.InvalidArgument {
		return err
	}
	return nil
}

// Close releases the underlying gRPC client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func encodingFor(format string) speechpb.RecognitionConfig_AudioEncoding {
	if strings.HasPrefix(format, "ogg") {
		return speechpb.RecognitionConfig_OGG_OPUS
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// classify maps gRPC status codes onto the pipeline's error taxonomy.
func classify(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return transcribe.NewTransientError(0, err.Error())
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Internal, codes.Aborted:
		return transcribe.NewTransientError(int(st.Code()), st.Message())
	default:
		return transcribe.NewPermanentError(int(st.Code()), st.Message())
	}
}
