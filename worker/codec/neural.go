package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"mediaCompressor/models"
	"mediaCompressor/worker/media"
)

// InferenceClient talks to the model server that hosts the learned codecs. A roundtrip
// sends raw media, runs the model's compress and decompress stages and returns the
// reconstruction in the format it was sent in.
type InferenceClient struct {
	Endpoint string
	HTTP     *http.Client
}

func NewInferenceClient(endpoint string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &InferenceClient{
		Endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		HTTP:     &http.Client{Timeout: timeout},
	}
}

func (c *InferenceClient) Enabled() bool {
	return c.Endpoint != ""
}

// Models returns the identifiers of the models the server has loaded.
func (c *InferenceClient) Models(ctx context.Context) ([]string, error) {
	if !c.Enabled() {
		return nil, errors.New("inference endpoint is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inference health check: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Status string   `json:"status"`
		Models []string `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("inference health check: %w", err)
	}
	return out.Models, nil
}

func (c *InferenceClient) Roundtrip(ctx context.Context, model, contentType string, payload []byte, target Target) ([]byte, error) {
	q := url.Values{}
	q.Set("quality", strconv.Itoa(target.Quality))
	if target.BitrateKbps > 0 {
		q.Set("bitrate", strconv.FormatFloat(target.BitrateKbps, 'f', -1, 64))
	}
	endpoint := fmt.Sprintf("%s/v1/models/%s/roundtrip?%s", c.Endpoint, url.PathEscape(model), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inference error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("inference returned an empty reconstruction")
	}
	return out, nil
}

// Neural compresses with a learned model and packages the reconstruction with a
// conventional container codec, so the artifact stays playable everywhere.
type Neural struct {
	kind      models.MediaKind
	model     string
	client    *InferenceClient
	container Codec
	tempDir   string
	logger    *zap.Logger
}

// NewNeural verifies that the server is reachable and has the model loaded.
func NewNeural(ctx context.Context, kind models.MediaKind, model string, client *InferenceClient, container Codec, tempDir string, logger *zap.Logger) (*Neural, error) {
	if kind != models.KindImage && kind != models.KindAudio {
		return nil, fmt.Errorf("neural %s: %w", kind, ErrUnsupportedKind)
	}
	if model == "" {
		return nil, errors.New("neural codec needs a model identifier")
	}
	if container == nil || !container.Supports(kind) {
		return nil, fmt.Errorf("neural %s: container codec missing", kind)
	}

	loaded, err := client.Models(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(loaded, model) {
		return nil, fmt.Errorf("model %q is not loaded on the inference server", model)
	}

	return &Neural{
		kind:      kind,
		model:     model,
		client:    client,
		container: container,
		tempDir:   tempDir,
		logger:    logger.Named("neural").With(zap.String("model", model)),
	}, nil
}

func (c *Neural) Name() string { return c.model }

func (c *Neural) Neural() bool { return true }

func (c *Neural) Supports(kind models.MediaKind) bool { return kind == c.kind }

// EffectiveBitrate follows the container, which makes the final encode.
func (c *Neural) EffectiveBitrate(kbps float64) float64 {
	return EffectiveBitrate(c.container, kbps)
}

func (c *Neural) Encode(ctx context.Context, asset *media.Asset, target Target, opts Options) ([]byte, error) {
	if asset.Kind != c.kind {
		return nil, fmt.Errorf("neural %s: %s: %w", c.kind, asset.Kind, ErrUnsupportedKind)
	}

	payload, contentType, err := c.payload(asset)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	recon, err := c.client.Roundtrip(ctx, c.model, contentType, payload, target)
	if err != nil {
		return nil, fmt.Errorf("neural roundtrip: %w", err)
	}

	reconstructed, err := c.reconstruct(recon)
	if err != nil {
		return nil, fmt.Errorf("neural reconstruction: %w", err)
	}

	out, err := c.container.Encode(ctx, reconstructed, target, opts)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Neural roundtrip finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

func (c *Neural) Decode(ctx context.Context, data []byte) (*media.Asset, error) {
	return c.container.Decode(ctx, data)
}

func (c *Neural) payload(asset *media.Asset) ([]byte, string, error) {
	switch c.kind {
	case models.KindImage:
		if asset.Image == nil {
			return nil, "", errors.New("no image to send")
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, asset.Image, imaging.PNG); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	default:
		if asset.PCM == nil {
			return nil, "", errors.New("no pcm to send")
		}
		data, err := media.EncodeWAV(asset.PCM, asset.BitDepth, c.tempDir)
		if err != nil {
			return nil, "", err
		}
		return data, "audio/wav", nil
	}
}

func (c *Neural) reconstruct(data []byte) (*media.Asset, error) {
	switch c.kind {
	case models.KindImage:
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &media.Asset{Kind: c.kind, Data: data, Image: img}, nil
	default:
		pcm, bitDepth, err := media.DecodeWAV(data)
		if err != nil {
			return nil, err
		}
		return &media.Asset{Kind: c.kind, Data: data, PCM: pcm, BitDepth: bitDepth}, nil
	}
}
